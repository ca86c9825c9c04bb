package video_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/video"
)

// fuaPackets splits a raw NAL unit (header byte + RBSP) into FU-A RTP
// payloads, each at most maxFrag RBSP bytes.
func fuaPackets(nalHeader byte, rbsp []byte) [][]byte {
	const maxFrag = 3
	naluType := nalHeader & 0x1F
	fuIndicator := (nalHeader & 0xE0) | 28 // FU-A type

	var packets [][]byte
	for i := 0; i < len(rbsp); i += maxFrag {
		end := i + maxFrag
		if end > len(rbsp) {
			end = len(rbsp)
		}
		header := naluType
		if i == 0 {
			header |= 0x80
		}
		if end == len(rbsp) {
			header |= 0x40
		}

		pkt := append([]byte{fuIndicator, header}, rbsp[i:end]...)
		packets = append(packets, pkt)
	}
	return packets
}

func TestProcessor_FUAReassembly(t *testing.T) {
	var emitted []video.AccessUnit
	p := video.NewProcessor()
	p.OnAccessUnit = func(au video.AccessUnit) { emitted = append(emitted, au) }

	original := []byte{0x65, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	frags := fuaPackets(original[0], original[1:])

	for i, frag := range frags {
		marker := i == len(frags)-1
		p.ProcessPacket(uint16(100+i), 1000, marker, frag)
	}

	require.Len(t, emitted, 1)
	require.Len(t, emitted[0].NALUs, 1)
	assert.Equal(t, original, emitted[0].NALUs[0])
	assert.True(t, emitted[0].Keyframe)
}

func TestProcessor_SequenceGapDropsAU(t *testing.T) {
	var errs []error
	var emitted []video.AccessUnit
	p := video.NewProcessor()
	p.OnError = func(err error) { errs = append(errs, err) }
	p.OnAccessUnit = func(au video.AccessUnit) { emitted = append(emitted, au) }

	original := []byte{0x65, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	frags := fuaPackets(original[0], original[1:])
	require.GreaterOrEqual(t, len(frags), 3)

	p.ProcessPacket(200, 2000, false, frags[0])
	// Drop frags[1]: deliver frags[2] with the wrong sequence number.
	p.ProcessPacket(202, 2000, true, frags[2])

	require.Len(t, errs, 1)
	var gapErr *video.NalReassemblyError
	require.ErrorAs(t, errs[0], &gapErr)
	assert.Empty(t, emitted, "dropped AU must not be emitted")

	// Next AU recovers cleanly.
	p.ProcessPacket(210, 3000, true, []byte{0x67, 0xaa, 0xbb})
	require.Len(t, emitted, 1)
}

func TestProcessor_SingleNALU(t *testing.T) {
	var emitted []video.AccessUnit
	p := video.NewProcessor()
	p.OnAccessUnit = func(au video.AccessUnit) { emitted = append(emitted, au) }

	p.ProcessPacket(1, 500, true, []byte{0x67, 0x42, 0x00, 0x1f})

	require.Len(t, emitted, 1)
	assert.Equal(t, uint32(500), emitted[0].RTPTimestamp)
	assert.False(t, emitted[0].Keyframe)
}

func TestProcessor_EmitParameterSetsOnce(t *testing.T) {
	var emitted []video.AccessUnit
	p := video.NewProcessor()
	p.OnAccessUnit = func(au video.AccessUnit) { emitted = append(emitted, au) }
	p.SetParameterSets([]byte{0x67, 1}, []byte{0x68, 2})

	p.EmitParameterSets()
	p.EmitParameterSets()

	require.Len(t, emitted, 1)
	require.Len(t, emitted[0].NALUs, 2)
}
