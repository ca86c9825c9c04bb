package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDiscoveredDevice_NamePattern(t *testing.T) {
	d := DiscoveredDevice{Name: "PI:workspace-glasses-1:abc123"}
	assert.Equal(t, "PI", d.ProductName())
	assert.Equal(t, "workspace-glasses-1", d.PhoneName())
	assert.Equal(t, "abc123", d.PhoneID())
}

func TestDiscoveredDevice_MalformedName(t *testing.T) {
	d := DiscoveredDevice{Name: "not-a-valid-pattern"}
	assert.Equal(t, "", d.ProductName())
	assert.Equal(t, "", d.PhoneName())
	assert.Equal(t, "", d.PhoneID())
}

func TestBrowser_SnapshotEmptyInitially(t *testing.T) {
	b := NewBrowser()
	assert.Empty(t, b.Snapshot())
}

func TestDeviceNotFoundError_Message(t *testing.T) {
	err := &DeviceNotFoundError{Pattern: "_http._tcp"}
	assert.Contains(t, err.Error(), "_http._tcp")
}

func TestExpiredNames_PastTTL(t *testing.T) {
	now := time.Now()
	lastSeen := map[string]time.Time{
		"stale":  now.Add(-2 * time.Minute),
		"fresh":  now.Add(-1 * time.Second),
		"exact":  now.Add(-30 * time.Second),
	}
	ttl := map[string]time.Duration{
		"stale": 30 * time.Second,
		"fresh": 30 * time.Second,
		"exact": 30 * time.Second,
	}

	expired := expiredNames(now, lastSeen, ttl)
	assert.ElementsMatch(t, []string{"stale"}, expired)
}

func TestExpiredNames_MissingTTLDefaultsToZero(t *testing.T) {
	now := time.Now()
	lastSeen := map[string]time.Time{"unknown-ttl": now.Add(-time.Nanosecond)}
	expired := expiredNames(now, lastSeen, map[string]time.Duration{})
	assert.Equal(t, []string{"unknown-ttl"}, expired)
}
