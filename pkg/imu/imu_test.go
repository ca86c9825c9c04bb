package imu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/imu"
	"github.com/crestline-labs/eyelink-realtime/pkg/wire"
)

func buildFrame(t *testing.T, withTemp bool) []byte {
	t.Helper()
	var payload []byte
	payload = wire.PutU64LE(payload, 9_000_000_000)
	for _, v := range []float32{0.1, 0.2, 9.8} {
		payload = wire.PutF32LE(payload, v)
	}
	for _, v := range []float32{1, 2, 3} {
		payload = wire.PutF32LE(payload, v)
	}
	for _, v := range []float32{1, 0, 0, 0} {
		payload = wire.PutF32LE(payload, v)
	}
	if withTemp {
		payload = wire.PutF32LE(payload, 36.6)
	}
	return payload
}

func TestDecode_WithoutTemperature(t *testing.T) {
	frame, err := imu.Decode(buildFrame(t, false))
	require.NoError(t, err)
	assert.Nil(t, frame.TemperatureC)
	assert.Equal(t, int64(9_000_000_000), frame.TimestampUnixNS)
	assert.Equal(t, float32(9.8), frame.AccelG.Z)
	assert.Equal(t, float32(1), frame.Quaternion.W)
}

func TestDecode_WithTemperature(t *testing.T) {
	frame, err := imu.Decode(buildFrame(t, true))
	require.NoError(t, err)
	require.NotNil(t, frame.TemperatureC)
	assert.InDelta(t, 36.6, *frame.TemperatureC, 0.001)
}

func TestDecode_UnrecognizedLength(t *testing.T) {
	_, err := imu.Decode(make([]byte, 10))
	require.Error(t, err)
}
