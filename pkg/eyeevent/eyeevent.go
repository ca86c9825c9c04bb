// Package eyeevent decodes the device's eye-event RTP payload (encoding
// name com.pupillabs.eventlist1) into tagged-union variants: FixationOnset,
// FixationEnd, SaccadeOnset, SaccadeEnd, Blink. Field layout follows the
// fixed-binary style of pkg/gaze, but the variant is chosen by the leading
// event_type byte rather than by payload length; byte order for
// the multi-byte numeric fields is little-endian (see DESIGN.md), except
// rtp_ts_unix_seconds which is filled in by the caller from the
// RTCP-derived wall clock (pkg/wallclock), not decoded here.
package eyeevent

import (
	"fmt"

	"github.com/crestline-labs/eyelink-realtime/pkg/wire"
)

// Type is the 1-byte event_type discriminant on the wire.
type Type uint8

const (
	TypeSaccadeEnd   Type = 0
	TypeFixationEnd  Type = 1
	TypeSaccadeOnset Type = 2
	TypeFixationOnset Type = 3
	TypeBlink        Type = 4
)

// Point2D is a 2D gaze-space coordinate.
type Point2D struct {
	X, Y float32
}

// EndEvent is the shared field set for SaccadeEnd/FixationEnd.
type EndEvent struct {
	StartNS       int64
	EndNS         int64
	StartGaze     Point2D
	EndGaze       Point2D
	MeanGaze      Point2D
	AmplitudePx   float32
	AmplitudeDeg  float32
	MeanVelocity  float32
	MaxVelocity   float32
}

// OnsetEvent is the shared field set for SaccadeOnset/FixationOnset.
type OnsetEvent struct {
	StartNS int64
}

// BlinkEvent carries a blink's start/end times.
type BlinkEvent struct {
	StartNS int64
	EndNS   int64
}

// Event is the decoded tagged union: exactly one field is non-nil,
// selected by the wire event_type byte. RTPTimestampUnixSeconds is filled
// in by the caller (pkg/simple, from pkg/wallclock), not by Decode.
type Event struct {
	Type                    Type
	SaccadeEnd              *EndEvent
	FixationEnd             *EndEvent
	SaccadeOnset            *OnsetEvent
	FixationOnset           *OnsetEvent
	Blink                   *BlinkEvent
	RTPTimestampUnixSeconds float64
}

// UnknownEventTypeError is returned for an event_type byte outside 0..4.
type UnknownEventTypeError struct {
	Type uint8
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("eyeevent: unknown event_type %d", e.Type)
}

// Decode parses one eye-event RTP payload.
func Decode(payload []byte) (Event, error) {
	if len(payload) < 1 {
		return Event{}, fmt.Errorf("eyeevent: empty payload")
	}

	r := wire.NewReader(payload[1:])
	typ := Type(payload[0])

	var ev Event
	ev.Type = typ

	switch typ {
	case TypeSaccadeEnd, TypeFixationEnd:
		end := decodeEndEvent(r)
		if typ == TypeSaccadeEnd {
			ev.SaccadeEnd = &end
		} else {
			ev.FixationEnd = &end
		}
	case TypeSaccadeOnset, TypeFixationOnset:
		onset := OnsetEvent{StartNS: r.I64LE()}
		if typ == TypeSaccadeOnset {
			ev.SaccadeOnset = &onset
		} else {
			ev.FixationOnset = &onset
		}
	case TypeBlink:
		ev.Blink = &BlinkEvent{StartNS: r.I64LE(), EndNS: r.I64LE()}
	default:
		return Event{}, &UnknownEventTypeError{Type: payload[0]}
	}

	if r.Err() != nil {
		return Event{}, fmt.Errorf("eyeevent: decode: %w", r.Err())
	}
	return ev, nil
}

func decodeEndEvent(r *wire.Reader) EndEvent {
	return EndEvent{
		StartNS:      r.I64LE(),
		EndNS:        r.I64LE(),
		StartGaze:    Point2D{X: r.F32LE(), Y: r.F32LE()},
		EndGaze:      Point2D{X: r.F32LE(), Y: r.F32LE()},
		MeanGaze:     Point2D{X: r.F32LE(), Y: r.F32LE()},
		AmplitudePx:  r.F32LE(),
		AmplitudeDeg: r.F32LE(),
		MeanVelocity: r.F32LE(),
		MaxVelocity:  r.F32LE(),
	}
}
