package gaze_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/gaze"
	"github.com/crestline-labs/eyelink-realtime/pkg/wire"
)

func TestDecode_Minimal(t *testing.T) {
	payload := gaze.EncodeMinimal(gaze.Minimal{X: 0.5, Y: -0.25, Worn: true})
	require.Len(t, payload, 9)

	sample, err := gaze.Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, sample.Minimal)

	// Bit-exact comparison, not approximate float equality.
	assert.Equal(t, math.Float32bits(0.5), math.Float32bits(sample.Minimal.X))
	assert.Equal(t, math.Float32bits(-0.25), math.Float32bits(sample.Minimal.Y))
	assert.True(t, sample.Minimal.Worn)
}

func TestDecode_UnknownLength(t *testing.T) {
	_, err := gaze.Decode(make([]byte, 42))
	require.Error(t, err)

	var decodeErr *gaze.GazePayloadDecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 42, decodeErr.Length)
}

func TestDecode_Dual(t *testing.T) {
	left := gaze.EncodeMinimal(gaze.Minimal{X: 1, Y: 2, Worn: true})
	right := gaze.EncodeMinimal(gaze.Minimal{X: 3, Y: 4, Worn: false})
	payload := append(append([]byte{}, left...), right...)

	sample, err := gaze.Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, sample.Dual)
	assert.Equal(t, float32(1), sample.Dual.Left.X)
	assert.Equal(t, float32(3), sample.Dual.Right.X)
	assert.True(t, sample.Dual.Left.Worn)
	assert.False(t, sample.Dual.Right.Worn)
}

func TestDecode_EyeState(t *testing.T) {
	var payload []byte
	payload = wire.PutF32BE(payload, 0.1) // x
	payload = wire.PutF32BE(payload, 0.2) // y
	payload = append(payload, 255)        // worn

	for i := 0; i < 14; i++ {
		payload = wire.PutF32BE(payload, float32(i))
	}
	payload = wire.PutF64BE(payload, 1234.5)

	require.Len(t, payload, 73)

	sample, err := gaze.Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, sample.EyeState)
	assert.Equal(t, float32(0), sample.EyeState.PupilDiameterL)
	assert.Equal(t, float32(1), sample.EyeState.CenterL.X)
	assert.Equal(t, 1234.5, sample.EyeState.TimestampUnixSeconds)
}
