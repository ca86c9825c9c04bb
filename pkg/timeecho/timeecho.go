// Package timeecho estimates the offset between the local wall clock and a
// device's clock via a UDP echo exchange. Dialer style uses an explicit
// dial timeout and no implicit retries.
package timeecho

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// TimeEchoProtocolNotSupportedError is returned when a device has no
// time-echo port configured (Phone.TimeEchoPort is null).
type TimeEchoProtocolNotSupportedError struct{}

func (e *TimeEchoProtocolNotSupportedError) Error() string {
	return "timeecho: device does not advertise a time echo port"
}

// TimeEchoTimeoutError is returned when a round receives no response
// within the per-round deadline.
type TimeEchoTimeoutError struct {
	Round int
}

func (e *TimeEchoTimeoutError) Error() string {
	return fmt.Sprintf("timeecho: round %d: no response within deadline", e.Round)
}

// RoundSample is one request/response exchange's measurement.
type RoundSample struct {
	OffsetNS int64
	RTTNS    int64
}

// Offset is the aggregate result of an EstimateOffset call.
type Offset struct {
	MeanOffsetNS int64
	MeanRTTNS    int64
	Samples      []RoundSample
}

// Apply adds the estimated offset to a local unix-nanosecond timestamp,
// producing the device-clock-equivalent timestamp. Convenience for
// pre-stamping event timestamps before sending them to the device.
func (o Offset) Apply(unixNS int64) int64 {
	return unixNS + o.MeanOffsetNS
}

// DefaultRoundDeadline is the per-round response deadline.
const DefaultRoundDeadline = 1 * time.Second

// EstimateOffset performs `rounds` UDP echo exchanges against
// host:port and returns the aggregated offset. port == 0 is treated as
// "no time echo port" and fails with TimeEchoProtocolNotSupportedError.
func EstimateOffset(ctx context.Context, host string, port int, rounds int) (Offset, error) {
	if port <= 0 {
		return Offset{}, &TimeEchoProtocolNotSupportedError{}
	}
	if rounds <= 0 {
		rounds = 100
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return Offset{}, fmt.Errorf("timeecho: dial: %w", err)
	}
	defer conn.Close()

	samples := make([]RoundSample, 0, rounds)
	var sumOffset, sumRTT int64

	buf := make([]byte, 8)
	resp := make([]byte, 8)

	for round := 0; round < rounds; round++ {
		select {
		case <-ctx.Done():
			return Offset{}, ctx.Err()
		default:
		}

		t0 := time.Now().UnixNano()
		binary.BigEndian.PutUint64(buf, uint64(t0))

		if err := conn.SetWriteDeadline(time.Now().Add(DefaultRoundDeadline)); err != nil {
			return Offset{}, err
		}
		if _, err := conn.Write(buf); err != nil {
			return Offset{}, fmt.Errorf("timeecho: write: %w", err)
		}

		if err := conn.SetReadDeadline(time.Now().Add(DefaultRoundDeadline)); err != nil {
			return Offset{}, err
		}
		n, err := conn.Read(resp)
		t1 := time.Now().UnixNano()
		if err != nil || n < 8 {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return Offset{}, &TimeEchoTimeoutError{Round: round}
			}
			return Offset{}, &TimeEchoTimeoutError{Round: round}
		}

		tDevice := int64(binary.BigEndian.Uint64(resp))
		rtt := t1 - t0
		offset := tDevice - (t0 + rtt/2)

		samples = append(samples, RoundSample{OffsetNS: offset, RTTNS: rtt})
		sumOffset += offset
		sumRTT += rtt
	}

	return Offset{
		MeanOffsetNS: sumOffset / int64(len(samples)),
		MeanRTTNS:    sumRTT / int64(len(samples)),
		Samples:      samples,
	}, nil
}
