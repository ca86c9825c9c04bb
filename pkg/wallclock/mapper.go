// Package wallclock converts per-stream RTP timestamps into nanoseconds
// since the Unix epoch using RTCP Sender Reports. The 32-bit-wraparound
// arithmetic uses an extended-timestamp technique: a 64-bit running base
// tracks how many times the 32-bit RTP timestamp has wrapped, so
// wall-clock conversion stays monotone across a wraparound.
package wallclock

import "sync"

// ntpUnixEpochOffsetSeconds is the number of seconds between the NTP epoch
// (1 Jan 1900) and the Unix epoch (1 Jan 1970).
const ntpUnixEpochOffsetSeconds = 2_208_988_800

// SenderReport is the subset of an RTCP Sender Report the mapper needs.
type SenderReport struct {
	RTPTimestamp uint32
	NTPSeconds   uint32
	NTPFraction  uint32
}

// ntpToUnixNS converts a 64-bit fixed-point NTP timestamp to nanoseconds
// since the Unix epoch.
func ntpToUnixNS(seconds, fraction uint32) int64 {
	unixSeconds := int64(seconds) - ntpUnixEpochOffsetSeconds
	fracNS := int64(fraction) * 1_000_000_000 / (1 << 32)
	return unixSeconds*1_000_000_000 + fracNS
}

// Mapper tracks the last Sender Report for one media stream and converts
// subsequent RTP timestamps to wall-clock nanoseconds. It is monotone
// within a stream after the first SR and handles 32-bit RTP timestamp
// wraparound by tracking a 64-bit extended timestamp.
type Mapper struct {
	mu sync.Mutex

	clockRate uint32

	haveSR       bool
	lastSRRTPTS  uint32
	offsetNS     int64

	haveExtended  bool
	lastRawTS     uint32
	extendedBase  int64 // multiple of 2^32 added to raw timestamps
}

// NewMapper creates a Mapper for a stream with the given RTP clock rate
// (e.g. 90000 for H.264 video, often 100 or 200 for gaze).
func NewMapper(clockRate uint32) *Mapper {
	return &Mapper{clockRate: clockRate}
}

// ObserveSenderReport anchors the mapper to a new Sender Report.
// offset_ns = ntp_to_unix_ns(ntp) - (rtp_ts * 1e9/clock_rate).
// The SR's own timestamp is folded into the same extended-timestamp track
// used by WallClock, so a wraparound straddling the SR and a later packet
// is still handled correctly.
func (m *Mapper) ObserveSenderReport(sr SenderReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unixNS := ntpToUnixNS(sr.NTPSeconds, sr.NTPFraction)
	extendedSRTS := m.extend(sr.RTPTimestamp)
	rtpNS := extendedSRTS * 1_000_000_000 / int64(m.clockRate)

	m.offsetNS = unixNS - rtpNS
	m.lastSRRTPTS = sr.RTPTimestamp
	m.haveSR = true
}

// HasSenderReport reports whether a Sender Report has been observed yet;
// until it returns true, WallClock has no offset to anchor to (pkg/simple
// withholds a stream's samples until then).
func (m *Mapper) HasSenderReport() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.haveSR
}

// WallClock converts an RTP timestamp to nanoseconds since the Unix epoch.
// ok is false if no Sender Report has been observed yet.
func (m *Mapper) WallClock(ts uint32) (ns int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.haveSR {
		return 0, false
	}

	extended := m.extend(ts)
	return extended*1_000_000_000/int64(m.clockRate) + m.offsetNS, true
}

// extend maps a raw 32-bit RTP timestamp onto a monotone 64-bit extended
// timestamp, adding 2^32 whenever the observed value decreases by more than
// 2^31 from the previous one (a wraparound, not a reordered packet).
func (m *Mapper) extend(ts uint32) int64 {
	if !m.haveExtended {
		m.haveExtended = true
		m.lastRawTS = ts
		return int64(ts)
	}

	delta := int64(ts) - int64(m.lastRawTS)
	if delta < -(1 << 31) {
		m.extendedBase += 1 << 32
	} else if delta > (1 << 31) {
		m.extendedBase -= 1 << 32
	}

	m.lastRawTS = ts
	return m.extendedBase + int64(ts)
}
