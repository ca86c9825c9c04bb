// Package gaze decodes the device's custom gaze RTP payload
// (encoding name com.pupillabs.gaze1) into one of four fixed-layout
// variants, dispatched on payload length, following a fixed-binary-layout,
// length-dispatch style with a pure length-switch over network-byte-order
// float fields.
package gaze

import (
	"fmt"

	"github.com/crestline-labs/eyelink-realtime/pkg/wire"
)

// GazePayloadDecodeError is returned for a payload whose length does not
// match any known variant. The caller drops the packet and continues; it
// does not abort the session.
type GazePayloadDecodeError struct {
	Length int
}

func (e *GazePayloadDecodeError) Error() string {
	return fmt.Sprintf("gaze: unrecognized payload length %d bytes", e.Length)
}

// Minimal is the 2D gaze point plus worn flag, the smallest variant.
type Minimal struct {
	X, Y float32
	Worn bool
}

// EyeCenter3D is a 3D pupil/eyeball-center point in the scene camera frame.
type EyeCenter3D struct {
	X, Y, Z float32
}

// EyeState carries 3D eye-model fields for both eyes alongside the 2D
// gaze point.
type EyeState struct {
	Minimal
	TimestampUnixSeconds float64

	PupilDiameterL float32
	CenterL        EyeCenter3D
	AxisL          EyeCenter3D

	PupilDiameterR float32
	CenterR        EyeCenter3D
	AxisR          EyeCenter3D
}

// EyelidState carries one eye's eyelid angle and aperture fields.
type EyelidState struct {
	AngleTop    float32
	AngleBottom float32
	Aperture    float32
}

// EyeStateWithEyelids extends EyeState with per-eye eyelid tracking.
type EyeStateWithEyelids struct {
	EyeState
	EyelidsL EyelidState
	EyelidsR EyelidState
}

// Dual carries independent left/right Minimal records, used by Pupil
// Invisible-style devices that never fuse into a single 3D eye model.
type Dual struct {
	Left, Right Minimal
}

// Sample is the decoded result of one gaze RTP payload: exactly one of the
// four fields is non-nil, selected by payload length.
type Sample struct {
	Minimal             *Minimal
	EyeState            *EyeState
	EyeStateWithEyelids *EyeStateWithEyelids
	Dual                *Dual
}

// Wire lengths for each variant. The documented headline byte counts for
// EyeState/EyeStateWithEyelids (77/121, called approximate) don't match
// their own field lists (Minimal + 14 f32 + f64 ts = 73 bytes; + 6 f32 =
// 97 bytes); resolved here by trusting the unambiguous
// field list over the approximate headline counts.
const (
	lenMinimal             = 9
	lenMinimalWithTS       = 21
	lenEyeState            = 73
	lenEyeStateWithEyelids = 97
	lenDual                = 18
)

// Decode dispatches on len(payload) and returns the matching variant, or
// GazePayloadDecodeError for an unrecognized length.
func Decode(payload []byte) (Sample, error) {
	switch len(payload) {
	case lenMinimal:
		m := decodeMinimal(payload)
		return Sample{Minimal: &m}, nil

	case lenMinimalWithTS:
		r := wire.NewReader(payload)
		m := Minimal{X: r.F32BE(), Y: r.F32BE(), Worn: r.U8() == 255}
		_ = r.F64BE() // timestamp field present but not surfaced on bare Minimal
		if r.Err() != nil {
			return Sample{}, fmt.Errorf("gaze: decode minimal+ts: %w", r.Err())
		}
		return Sample{Minimal: &m}, nil

	case lenEyeState:
		es, err := decodeEyeState(payload)
		if err != nil {
			return Sample{}, err
		}
		return Sample{EyeState: &es}, nil

	case lenEyeStateWithEyelids:
		es, err := decodeEyeState(payload[:lenEyeState])
		if err != nil {
			return Sample{}, err
		}
		r := wire.NewReader(payload[lenEyeState:])
		withLids := EyeStateWithEyelids{
			EyeState: es,
			EyelidsL: EyelidState{AngleTop: r.F32BE(), AngleBottom: r.F32BE(), Aperture: r.F32BE()},
			EyelidsR: EyelidState{AngleTop: r.F32BE(), AngleBottom: r.F32BE(), Aperture: r.F32BE()},
		}
		if r.Err() != nil {
			return Sample{}, fmt.Errorf("gaze: decode eyelids: %w", r.Err())
		}
		return Sample{EyeStateWithEyelids: &withLids}, nil

	case lenDual:
		left := decodeMinimal(payload[:lenMinimal])
		right := decodeMinimal(payload[lenMinimal:])
		return Sample{Dual: &Dual{Left: left, Right: right}}, nil

	default:
		return Sample{}, &GazePayloadDecodeError{Length: len(payload)}
	}
}

func decodeMinimal(payload []byte) Minimal {
	r := wire.NewReader(payload)
	return Minimal{X: r.F32BE(), Y: r.F32BE(), Worn: r.U8() == 255}
}

func decodeEyeState(payload []byte) (EyeState, error) {
	r := wire.NewReader(payload)
	es := EyeState{
		Minimal: Minimal{X: r.F32BE(), Y: r.F32BE(), Worn: r.U8() == 255},

		PupilDiameterL: r.F32BE(),
		CenterL:        EyeCenter3D{X: r.F32BE(), Y: r.F32BE(), Z: r.F32BE()},
		AxisL:          EyeCenter3D{X: r.F32BE(), Y: r.F32BE(), Z: r.F32BE()},

		PupilDiameterR: r.F32BE(),
		CenterR:        EyeCenter3D{X: r.F32BE(), Y: r.F32BE(), Z: r.F32BE()},
		AxisR:          EyeCenter3D{X: r.F32BE(), Y: r.F32BE(), Z: r.F32BE()},
	}
	es.TimestampUnixSeconds = r.F64BE()

	if r.Err() != nil {
		return EyeState{}, fmt.Errorf("gaze: decode eye state: %w", r.Err())
	}
	return es, nil
}

// EncodeMinimal is the inverse of Decode for the Minimal variant, used by
// the round-trip test in gaze_test.go.
func EncodeMinimal(m Minimal) []byte {
	buf := make([]byte, 0, lenMinimal)
	buf = wire.PutF32BE(buf, m.X)
	buf = wire.PutF32BE(buf, m.Y)
	worn := byte(0)
	if m.Worn {
		worn = 255
	}
	return append(buf, worn)
}
