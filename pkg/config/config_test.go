package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/config"
)

func TestLoad_ParsesPairingCodeAndTemplateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"# comment\n\npairing_code=ABC123\ntemplate_data_key=hello%20world\n"),
		0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", cfg.PairingCode)
	assert.Equal(t, "hello world", cfg.TemplateDataKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadDeviceList_ByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"devices:\n  - name: desk\n    host: 192.168.1.10\n    port: 8080\n  - name: bench\n    host: 192.168.1.20\n    port: 8081\n"),
		0o600))

	list, err := config.LoadDeviceList(path)
	require.NoError(t, err)

	dev, ok := list.ByName("bench")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.20", dev.Host)
	assert.Equal(t, 8081, dev.Port)

	_, ok = list.ByName("nonexistent")
	assert.False(t, ok)
}
