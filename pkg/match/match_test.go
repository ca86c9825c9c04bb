package match_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/match"
)

// TestMatcher_NearestWins checks nearest-timestamp selection: video at
// 30Hz (0,33,66ms), gaze at 200Hz (0,5,...ms). For leader frame at 66ms,
// the matched gaze timestamp must be 65ms (the lower |delta|), not 70ms.
func TestMatcher_NearestWins(t *testing.T) {
	m := match.New("video", []string{"gaze"}, 40*time.Millisecond, 200*time.Millisecond)

	for i := 0; i <= 70; i += 5 {
		require.NoError(t, m.Push("gaze", match.Sample{WallClockNS: int64(i) * int64(time.Millisecond)}))
	}
	require.NoError(t, m.Push("video", match.Sample{WallClockNS: 66 * int64(time.Millisecond)}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fused, err := m.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, fused.Followers["gaze"])
	assert.Equal(t, int64(65*time.Millisecond), fused.Followers["gaze"].WallClockNS)
}

func TestMatcher_FollowerNilWhenStarved(t *testing.T) {
	m := match.New("video", []string{"gaze"}, 10*time.Millisecond, 30*time.Millisecond)
	require.NoError(t, m.Push("video", match.Sample{WallClockNS: 1000}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fused, err := m.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, fused.Followers["gaze"])
}

func TestMatcher_PushOverflowDropsOldest(t *testing.T) {
	m := match.New("video", []string{"gaze"}, time.Second, time.Second)

	var lastErr error
	for i := 0; i < match.DefaultMaxDepth+5; i++ {
		lastErr = m.Push("gaze", match.Sample{WallClockNS: int64(i)})
	}

	var overflow *match.Overflow
	require.ErrorAs(t, lastErr, &overflow)
}

func TestMatcher_UnknownStream(t *testing.T) {
	m := match.New("video", []string{"gaze"}, time.Second, time.Second)
	err := m.Push("imu", match.Sample{})
	require.Error(t, err)
}
