// Package imu decodes the device's 6-DoF inertial-measurement RTP payload
// (encoding name com.pupillabs.imu1): accelerometer, gyroscope,
// orientation quaternion, optional temperature, and a little-endian
// nanosecond timestamp. Fixed-layout decode with no length prefix; the
// layout is chosen by the total payload length.
package imu

import (
	"fmt"

	"github.com/crestline-labs/eyelink-realtime/pkg/wire"
)

// Vec3 is a 3-axis reading.
type Vec3 struct {
	X, Y, Z float32
}

// Quaternion is a w,x,y,z orientation quaternion.
type Quaternion struct {
	W, X, Y, Z float32
}

const (
	lenWithoutTemp = 8 + 12 + 12 + 16 // timestamp + accel + gyro + quat
	lenWithTemp    = lenWithoutTemp + 4
)

// Frame is one decoded IMU sample.
type Frame struct {
	AccelG           Vec3
	GyroDPS          Vec3
	Quaternion       Quaternion
	TemperatureC     *float32
	TimestampUnixNS  int64
}

// Decode parses one IMU RTP payload. Payloads of lenWithoutTemp bytes omit
// temperature; lenWithTemp bytes append a trailing f32 temperature_c.
func Decode(payload []byte) (Frame, error) {
	switch len(payload) {
	case lenWithoutTemp, lenWithTemp:
	default:
		return Frame{}, fmt.Errorf("imu: unrecognized payload length %d bytes", len(payload))
	}

	r := wire.NewReader(payload)
	frame := Frame{
		TimestampUnixNS: r.I64LE(),
		AccelG:          Vec3{X: r.F32LE(), Y: r.F32LE(), Z: r.F32LE()},
		GyroDPS:         Vec3{X: r.F32LE(), Y: r.F32LE(), Z: r.F32LE()},
		Quaternion: Quaternion{
			W: r.F32LE(), X: r.F32LE(), Y: r.F32LE(), Z: r.F32LE(),
		},
	}

	if len(payload) == lenWithTemp {
		temp := r.F32LE()
		frame.TemperatureC = &temp
	}

	if r.Err() != nil {
		return Frame{}, fmt.Errorf("imu: decode: %w", r.Err())
	}
	return frame, nil
}
