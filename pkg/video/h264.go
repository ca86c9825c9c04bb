// Package video reassembles H.264 Access Units from RTP payloads per
// RFC 6184: a NAL-type switch over single NALU / STAP-A / FU-A packets,
// with FU-A start/continue/end buffer reassembly. A sequence-number gap
// inside an in-progress Access Unit yields NalReassemblyError and resets
// rather than silently continuing, and SPS/PPS come from the SDP
// sprop-parameter-sets (fed in once via SetParameterSets) rather than
// being re-prepended on every keyframe.
package video

import (
	"encoding/binary"
	"fmt"
)

// NAL unit type constants (RFC 6184 §5.2, ITU-T H.264 Annex B).
const (
	NALUTypePFrame = 1
	NALUTypeIFrame = 5
	NALUTypeSEI    = 6
	NALUTypeSPS    = 7
	NALUTypePPS    = 8
	NALUTypeAUD    = 9
	NALUTypeSTAPA  = 24
	NALUTypeFUA    = 28
)

// NalReassemblyError is returned when a sequence-number gap is detected
// inside an in-progress Access Unit; the in-flight AU is dropped and the
// next one starts fresh.
type NalReassemblyError struct {
	ExpectedSeq uint16
	GotSeq      uint16
}

func (e *NalReassemblyError) Error() string {
	return fmt.Sprintf("video: sequence gap in access unit: expected seq %d, got %d", e.ExpectedSeq, e.GotSeq)
}

// AccessUnit is one or more NAL units sharing an RTP timestamp, the unit
// the depacketizer emits (the GLOSSARY's "Access Unit").
type AccessUnit struct {
	NALUs        [][]byte // each entry is one raw NAL unit, no length prefix
	Keyframe     bool
	RTPTimestamp uint32
}

// Processor reassembles RTP payloads carrying H.264 into Access Units.
// It is payload-agnostic about anything above NAL boundaries: the caller
// owns wall-clock tagging (pkg/wallclock) and consumption.
type Processor struct {
	fuBuffer   []byte
	fuNALType  uint8
	fuActive   bool
	lastSeq    uint16
	haveLastSeq bool

	auNALUs      [][]byte
	auTimestamp  uint32
	auHasPackets bool

	sps, pps []byte
	paramsEmitted bool

	// OnAccessUnit is called once per completed Access Unit (on the
	// packet carrying the marker bit).
	OnAccessUnit func(AccessUnit)

	// OnError is called for a dropped AU (NalReassemblyError) or a
	// malformed packet; the session logs and continues.
	OnError func(error)
}

// NewProcessor creates an empty H.264 depacketizer.
func NewProcessor() *Processor {
	return &Processor{}
}

// SetParameterSets feeds the SPS/PPS NAL units extracted from the SDP's
// sprop-parameter-sets (via pkg/rtsp). They are emitted exactly once, as
// their own AccessUnit, ahead of the first video frame.
func (p *Processor) SetParameterSets(sps, pps []byte) {
	p.sps = sps
	p.pps = pps
}

// EmitParameterSets pushes the stored SPS/PPS as one AccessUnit if they
// have not already been emitted. pkg/simple calls this before feeding each
// RTP packet; only the first call emits.
func (p *Processor) EmitParameterSets() {
	if p.paramsEmitted || p.OnAccessUnit == nil {
		return
	}
	if len(p.sps) == 0 && len(p.pps) == 0 {
		return
	}
	var nalus [][]byte
	if len(p.sps) > 0 {
		nalus = append(nalus, p.sps)
	}
	if len(p.pps) > 0 {
		nalus = append(nalus, p.pps)
	}
	p.paramsEmitted = true
	p.OnAccessUnit(AccessUnit{NALUs: nalus})
}

// ProcessPacket feeds one RTP packet's sequence number, timestamp, marker
// bit and payload through the depacketizer.
func (p *Processor) ProcessPacket(seq uint16, timestamp uint32, marker bool, payload []byte) {
	if len(payload) == 0 {
		return
	}

	if p.haveLastSeq && p.auHasPackets {
		expected := p.lastSeq + 1
		if seq != expected {
			p.reportError(&NalReassemblyError{ExpectedSeq: expected, GotSeq: seq})
			p.resetAU()
		}
	}
	p.lastSeq = seq
	p.haveLastSeq = true

	if p.auHasPackets && timestamp != p.auTimestamp {
		// A new AU started without a marker bit on the prior one; discard
		// the incomplete AU and start fresh.
		p.resetAU()
	}
	p.auTimestamp = timestamp
	p.auHasPackets = true

	naluType := payload[0] & 0x1F
	switch naluType {
	case NALUTypeFUA:
		p.processFUA(payload)
	case NALUTypeSTAPA:
		p.processSTAPA(payload)
	default:
		p.addNALU(payload)
	}

	if marker {
		p.flushAU()
	}
}

func (p *Processor) processFUA(payload []byte) {
	if len(payload) < 2 {
		p.reportError(fmt.Errorf("video: FU-A packet too short"))
		return
	}

	fuIndicator := payload[0]
	fuHeader := payload[1]
	frag := payload[2:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1F

	if start {
		p.fuBuffer = p.fuBuffer[:0]
		nalHeader := (fuIndicator & 0xE0) | naluType
		p.fuBuffer = append(p.fuBuffer, nalHeader)
		p.fuActive = true
	}

	if !p.fuActive {
		// Fragment arrived without a start packet (e.g. the start was
		// dropped); nothing coherent to reassemble.
		return
	}

	p.fuBuffer = append(p.fuBuffer, frag...)

	if end {
		nalu := make([]byte, len(p.fuBuffer))
		copy(nalu, p.fuBuffer)
		p.addNALU(nalu)
		p.fuActive = false
	}
}

func (p *Processor) processSTAPA(payload []byte) {
	rest := payload[1:]
	for len(rest) > 2 {
		size := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
		if len(rest) < int(size) {
			p.reportError(fmt.Errorf("video: STAP-A NALU size exceeds payload"))
			return
		}
		nalu := make([]byte, size)
		copy(nalu, rest[:size])
		rest = rest[size:]
		p.addNALU(nalu)
	}
}

func (p *Processor) addNALU(nalu []byte) {
	naluType := nalu[0] & 0x1F
	switch naluType {
	case NALUTypeSPS:
		p.sps = append([]byte{}, nalu...)
	case NALUTypePPS:
		p.pps = append([]byte{}, nalu...)
	}
	p.auNALUs = append(p.auNALUs, nalu)
}

func (p *Processor) flushAU() {
	if len(p.auNALUs) == 0 {
		p.resetAU()
		return
	}

	keyframe := false
	for _, n := range p.auNALUs {
		if n[0]&0x1F == NALUTypeIFrame {
			keyframe = true
			break
		}
	}

	if p.OnAccessUnit != nil {
		p.OnAccessUnit(AccessUnit{
			NALUs:        p.auNALUs,
			Keyframe:     keyframe,
			RTPTimestamp: p.auTimestamp,
		})
	}

	p.resetAU()
}

func (p *Processor) resetAU() {
	p.auNALUs = nil
	p.auHasPackets = false
	p.fuActive = false
}

func (p *Processor) reportError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

// AppendAnnexB appends nalu to dst in Annex B start-code form
// (00 00 00 01 + NALU), the byte-stream format most H.264 decoders accept
// directly, as an alternative to the 4-byte-length AVC form.
func AppendAnnexB(dst, nalu []byte) []byte {
	dst = append(dst, 0x00, 0x00, 0x00, 0x01)
	return append(dst, nalu...)
}
