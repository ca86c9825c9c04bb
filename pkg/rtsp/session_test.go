package rtsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/logger"
)

func TestParseRtpmap(t *testing.T) {
	encoding, rate, ok := parseRtpmap("96 H264/90000")
	require.True(t, ok)
	assert.Equal(t, "H264", encoding)
	assert.Equal(t, uint32(90000), rate)
}

func TestParseRtpmap_Malformed(t *testing.T) {
	_, _, ok := parseRtpmap("96")
	assert.False(t, ok)
}

func TestParseSpropParameterSets(t *testing.T) {
	// base64 of two short synthetic NAL units.
	fmtp := "96 packetization-mode=1;sprop-parameter-sets=Z00AKg==,aO48gA==;profile-level-id=42002a"
	nalus, ok := parseSpropParameterSets(fmtp)
	require.True(t, ok)
	require.Len(t, nalus, 2)
	assert.NotEmpty(t, nalus[0])
	assert.NotEmpty(t, nalus[1])
}

func TestParseSpropParameterSets_Absent(t *testing.T) {
	_, ok := parseSpropParameterSets("96 packetization-mode=1")
	assert.False(t, ok)
}

func TestParseSessionTimeout(t *testing.T) {
	d, err := parseSessionTimeout("timeout=60")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d)
}

func TestParseSessionTimeout_Missing(t *testing.T) {
	_, err := parseSessionTimeout("")
	require.Error(t, err)
}

func TestSession_ParseSDP_H264AndApplicationMedia(t *testing.T) {
	sdpBody := []byte("v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=eyelink\r\n" +
		"t=0 0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=control:video\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"a=fmtp:96 packetization-mode=1;sprop-parameter-sets=Z00AKg==,aO48gA==\r\n" +
		"m=application 0 RTP/AVP 97\r\n" +
		"a=control:gaze\r\n" +
		"a=rtpmap:97 com.pupillabs.gaze1/1000\r\n")

	s := NewSession("rtsp://device/", logger.Default())
	require.NoError(t, s.parseSDP(sdpBody))
	require.Len(t, s.media, 2)

	video := s.media[0]
	require.NotNil(t, video)
	assert.Equal(t, "H264", video.EncodingName)
	assert.Equal(t, uint32(90000), video.ClockRate)
	assert.Equal(t, byte(0), video.RTPChannel)
	assert.Equal(t, byte(1), video.RTCPChannel)
	require.Len(t, video.SpropParams, 2)

	gaze := s.media[2]
	require.NotNil(t, gaze)
	assert.Equal(t, "com.pupillabs.gaze1", gaze.EncodingName)
	assert.Equal(t, uint32(1000), gaze.ClockRate)
	assert.Equal(t, byte(2), gaze.RTPChannel)
	assert.Equal(t, byte(3), gaze.RTCPChannel)
}
