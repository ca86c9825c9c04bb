// Package rtsp implements an RTSP 1.0-over-TCP session against one device
// sensor URL: OPTIONS/DESCRIBE/SETUP/PLAY/TEARDOWN plus periodic
// GET_PARAMETER keepalives. Uses an interleaved-TCP `$`-framed read loop
// retargeted to an arbitrary sensor URL, with SDP parsing done via
// github.com/pion/sdp/v3 and standard GET_PARAMETER keepalives.
package rtsp

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"

	"github.com/crestline-labs/eyelink-realtime/pkg/logger"
)

// Media describes one negotiated RTSP media track.
type Media struct {
	RTPChannel    byte
	RTCPChannel   byte
	MediaType     string // "video", "audio", "application" (gaze/imu/eventlist use application or a custom type)
	EncodingName  string
	ClockRate     uint32
	Control       string
	SpropParams   [][]byte // decoded sprop-parameter-sets NAL units, H.264 only
}

// MissingTimestampWarning is reported (never returned as a fatal error)
// when a media's grace window elapses with no RTCP Sender Report. The
// session forwards every RTP packet whether or not an SR has arrived;
// pkg/simple logs the warning and keeps withholding that media's samples
// until an SR arrives, so samples are not released without a wall clock.
type MissingTimestampWarning struct {
	RTPChannel byte
}

func (e *MissingTimestampWarning) Error() string {
	return fmt.Sprintf("rtsp: no sender report within grace window on RTP channel %d", e.RTPChannel)
}

// Packet is one RTP packet delivered on the session's packet channel,
// tagged with the media it arrived on.
type Packet struct {
	Media   Media
	RTP     *rtp.Packet
}

// Report is one parsed RTCP Sender Report, tagged with its media.
type Report struct {
	Media Media
	SR    rtcp.SenderReport
}

// Session is an RTSP client scoped to one sensor URL.
type Session struct {
	url     string
	baseURL string
	log     *logger.Logger

	conn   net.Conn
	reader *bufio.Reader

	session       string
	timeout       time.Duration
	cseq          int
	writeMu       sync.Mutex

	media       map[byte]*Media // keyed by RTP channel
	graceWindow time.Duration

	srMu      sync.Mutex
	srSeenSet map[byte]bool

	Packets chan Packet
	Reports chan Report
	// Warnings delivers MissingTimestampWarning and transport-layer
	// warnings that do not abort the session.
	Warnings chan error

	keepaliveCancel context.CancelFunc
}

// DefaultGraceWindow is used when no grace window is configured: how long
// to wait for a Sender Report before tagging samples as having no wall
// clock mapping yet.
const DefaultGraceWindow = 2 * time.Second

// NewSession creates a Session for the given RTSP URL
// (rtsp://<ip>:<port>/?<params>).
func NewSession(rtspURL string, log *logger.Logger) *Session {
	return &Session{
		url:         rtspURL,
		log:         log,
		media:       make(map[byte]*Media),
		graceWindow: DefaultGraceWindow,
		Packets:     make(chan Packet, 256),
		Reports:     make(chan Report, 32),
		Warnings:    make(chan error, 32),
		timeout:     60 * time.Second,
	}
}

// SetGraceWindow overrides the default withholding grace window.
func (s *Session) SetGraceWindow(d time.Duration) {
	s.graceWindow = d
}

// Connect dials the RTSP server and performs OPTIONS + DESCRIBE, populating
// Media descriptors from the SDP answer.
func (s *Session) Connect(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("rtsp: parse URL: %w", err)
	}

	port := u.Port()
	if port == "" {
		port = "554"
	}
	host := u.Hostname()
	addr := net.JoinHostPort(host, port)

	s.log.DebugRTSP("connecting", "host", host, "port", port)

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("rtsp: dial: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	s.conn = conn
	s.reader = bufio.NewReaderSize(conn, 65536)

	if err := s.options(ctx); err != nil {
		return fmt.Errorf("rtsp: OPTIONS: %w", err)
	}
	if err := s.describe(ctx); err != nil {
		return fmt.Errorf("rtsp: DESCRIBE: %w", err)
	}

	return nil
}

// SetupAll performs SETUP for every media extracted from the SDP.
func (s *Session) SetupAll(ctx context.Context) error {
	for ch, m := range s.media {
		if err := s.setupTrack(ctx, ch, m); err != nil {
			return fmt.Errorf("rtsp: setup track %d: %w", ch, err)
		}
	}
	return nil
}

// Media returns the negotiated media descriptors, keyed by RTP channel.
func (s *Session) Media() map[byte]*Media {
	return s.media
}

// Play starts streaming and launches the background read and keepalive
// loops; it returns once the PLAY request has been written (the response
// is consumed from the interleaved stream, since the server may start
// sending RTP packets before the PLAY response arrives).
func (s *Session) Play(ctx context.Context) error {
	playURL := s.baseURL
	if u, err := url.Parse(playURL); err == nil {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		playURL = u.String()
	}

	req := s.newRequest("PLAY", playURL)
	req.Header["Range"] = "npt=0.000-"
	if err := s.writeRequest(req); err != nil {
		return fmt.Errorf("rtsp: PLAY: %w", err)
	}

	s.startKeepalive(ctx)

	go s.readLoop(ctx)
	go s.graceTimers()

	return nil
}

// graceTimers fires a MissingTimestampWarning per media whose grace window
// elapses before any Sender Report has been observed on its RTCP channel.
// Actual SR-arrival tracking happens in readLoop; this just times out.
func (s *Session) graceTimers() {
	deadline := time.NewTimer(s.graceWindow)
	defer deadline.Stop()
	<-deadline.C
	for ch, m := range s.media {
		if !s.srSeen(ch) {
			select {
			case s.Warnings <- &MissingTimestampWarning{RTPChannel: m.RTPChannel}:
			default:
			}
		}
	}
}

func (s *Session) srSeen(ch byte) bool {
	s.srMu.Lock()
	defer s.srMu.Unlock()
	return s.srSeenSet[ch]
}

// startKeepalive sends GET_PARAMETER at 2/3 of the session timeout, the
// RTSP-standard keepalive method.
func (s *Session) startKeepalive(ctx context.Context) {
	interval := s.timeout * 2 / 3
	if interval <= 0 {
		interval = 16 * time.Second
	}

	keepaliveCtx, cancel := context.WithCancel(ctx)
	s.keepaliveCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-keepaliveCtx.Done():
				return
			case <-ticker.C:
				req := s.newRequest("GET_PARAMETER", s.url)
				if err := s.writeRequest(req); err != nil {
					s.log.DebugRTSP("keepalive write failed", "error", err)
					return
				}
			}
		}
	}()
}

// readLoop reads interleaved RTP/RTCP packets and RTSP responses off the
// wire, dispatching RTP packets to Packets and parsed Sender Reports to
// Reports.
func (s *Session) readLoop(ctx context.Context) {
	defer close(s.Packets)
	defer close(s.Reports)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return
		}

		buf4, err := s.reader.Peek(4)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case s.Warnings <- fmt.Errorf("rtsp: peek: %w", err):
			default:
			}
			return
		}

		if buf4[0] != '$' {
			if string(buf4) == "RTSP" {
				if _, err := s.readResponseNoDeadline(); err != nil {
					select {
					case s.Warnings <- fmt.Errorf("rtsp: read response in stream: %w", err):
					default:
					}
					return
				}
				continue
			}
			if _, err := s.reader.ReadByte(); err != nil {
				return
			}
			continue
		}

		channel := buf4[1]
		size := binary.BigEndian.Uint16(buf4[2:4])

		if _, err := s.reader.Discard(4); err != nil {
			return
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(s.reader, payload); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case s.Warnings <- fmt.Errorf("rtsp: read payload: %w", err):
			default:
			}
			return
		}

		m, ok := s.media[channel]
		if ok && channel == m.RTPChannel {
			pkt := &rtp.Packet{}
			if err := pkt.Unmarshal(payload); err != nil {
				s.log.DebugRTP("failed to unmarshal RTP packet", "channel", channel, "error", err)
				continue
			}
			s.Packets <- Packet{Media: *m, RTP: pkt}
			continue
		}

		// Odd channels carry RTCP; find the media owning this RTCP channel.
		for _, cm := range s.media {
			if cm.RTCPChannel == channel {
				s.handleRTCP(*cm, payload)
				break
			}
		}
	}
}

func (s *Session) handleRTCP(m Media, payload []byte) {
	packets, err := rtcp.Unmarshal(payload)
	if err != nil {
		s.log.DebugRTSP("failed to unmarshal RTCP packet", "error", err)
		return
	}
	for _, p := range packets {
		if sr, ok := p.(*rtcp.SenderReport); ok {
			s.markSRSeen(m.RTPChannel)
			s.Reports <- Report{Media: m, SR: *sr}
		}
	}
}

func (s *Session) markSRSeen(ch byte) {
	s.srMu.Lock()
	defer s.srMu.Unlock()
	if s.srSeenSet == nil {
		s.srSeenSet = make(map[byte]bool)
	}
	s.srSeenSet[ch] = true
}

// Close tears down the session: stops the keepalive loop and sends
// TEARDOWN. Safe to call more than once.
func (s *Session) Close() error {
	if s.keepaliveCancel != nil {
		s.keepaliveCancel()
		s.keepaliveCancel = nil
	}
	if s.conn != nil {
		req := s.newRequest("TEARDOWN", s.url)
		_ = s.writeRequest(req)
		return s.conn.Close()
	}
	return nil
}

func (s *Session) options(ctx context.Context) error {
	req := s.newRequest("OPTIONS", s.url)
	_, err := s.do(req)
	return err
}

func (s *Session) describe(ctx context.Context) error {
	req := s.newRequest("DESCRIBE", s.url)
	req.Header["Accept"] = "application/sdp"

	resp, err := s.do(req)
	if err != nil {
		return err
	}

	if cb := resp.Header["Content-Base"]; cb != "" {
		s.baseURL = strings.TrimSpace(cb)
	} else {
		s.baseURL = s.url
	}

	if st := resp.Header["Session"]; st != "" {
		if idx := strings.IndexByte(st, ';'); idx > 0 {
			if to, err := parseSessionTimeout(st[idx+1:]); err == nil {
				s.timeout = to
			}
		}
	}

	return s.parseSDP(resp.Body)
}

func parseSessionTimeout(params string) (time.Duration, error) {
	for _, p := range strings.Split(params, ";") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "timeout=") {
			secs, err := strconv.Atoi(strings.TrimPrefix(p, "timeout="))
			if err != nil {
				return 0, err
			}
			return time.Duration(secs) * time.Second, nil
		}
	}
	return 0, fmt.Errorf("no timeout param")
}

// parseSDP uses pion/sdp/v3 to extract per-media rtpmap, fmtp
// (sprop-parameter-sets) and control attributes.
func (s *Session) parseSDP(body []byte) error {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return fmt.Errorf("rtsp: parse SDP: %w", err)
	}

	var channelID byte
	for _, md := range sd.MediaDescriptions {
		m := &Media{
			RTPChannel:  channelID,
			RTCPChannel: channelID + 1,
			MediaType:   md.MediaName.Media,
			ClockRate:   90000, // fallback, overwritten by rtpmap below
		}

		for _, attr := range md.Attributes {
			switch attr.Key {
			case "control":
				m.Control = attr.Value
			case "rtpmap":
				if name, rate, ok := parseRtpmap(attr.Value); ok {
					m.EncodingName = name
					m.ClockRate = rate
				}
			case "fmtp":
				if params, ok := parseSpropParameterSets(attr.Value); ok {
					m.SpropParams = params
				}
			}
		}

		s.media[channelID] = m
		channelID += 2
	}

	s.log.DebugRTSP("parsed SDP", "media_count", len(s.media))
	return nil
}

// parseRtpmap parses an SDP rtpmap attribute value of the form
// "<payload> <encoding>/<clock-rate>[/<params>]".
func parseRtpmap(value string) (encoding string, clockRate uint32, ok bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return "", 0, false
	}
	parts := strings.Split(fields[1], "/")
	if len(parts) < 2 {
		return "", 0, false
	}
	rate, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return parts[0], uint32(rate), true
}

// parseSpropParameterSets extracts and base64-decodes an H.264 fmtp's
// sprop-parameter-sets list into raw NAL units.
func parseSpropParameterSets(fmtpValue string) ([][]byte, bool) {
	const key = "sprop-parameter-sets="
	idx := strings.Index(fmtpValue, key)
	if idx < 0 {
		return nil, false
	}
	rest := fmtpValue[idx+len(key):]
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		rest = rest[:semi]
	}

	var nalus [][]byte
	for _, b64 := range strings.Split(rest, ",") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
		if err != nil {
			continue
		}
		nalus = append(nalus, decoded)
	}
	if len(nalus) == 0 {
		return nil, false
	}
	return nalus, true
}

func (s *Session) setupTrack(ctx context.Context, channelID byte, m *Media) error {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return err
	}
	if strings.HasPrefix(m.Control, "rtsp://") {
		u, err = url.Parse(m.Control)
		if err != nil {
			return err
		}
	} else if m.Control != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(m.Control, "/")
	}

	req := s.newRequest("SETUP", u.String())
	req.Header["Transport"] = fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", channelID, channelID+1)

	resp, err := s.do(req)
	if err != nil {
		return err
	}

	if s.session == "" {
		if sess := resp.Header["Session"]; sess != "" {
			if idx := strings.IndexByte(sess, ';'); idx > 0 {
				s.session = sess[:idx]
				if to, err := parseSessionTimeout(sess[idx+1:]); err == nil {
					s.timeout = to
				}
			} else {
				s.session = sess
			}
		}
	}

	return nil
}

func (s *Session) newRequest(method, url string) *request {
	s.cseq++
	return &request{Method: method, URL: url, Header: make(map[string]string), CSeq: s.cseq}
}

func (s *Session) do(req *request) (*response, error) {
	if err := s.writeRequest(req); err != nil {
		return nil, err
	}
	return s.readResponse()
}

func (s *Session) writeRequest(req *request) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.session != "" {
		req.Header["Session"] = s.session
	}

	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("%s %s RTSP/1.0\r\n", req.Method, req.URL))
	buf.WriteString(fmt.Sprintf("CSeq: %d\r\n", req.CSeq))
	buf.WriteString("User-Agent: eyelink-realtime/1.0\r\n")
	for k, v := range req.Header {
		buf.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buf.WriteString("\r\n")

	if err := s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte(buf.String()))
	return err
}

func (s *Session) readResponse() (*response, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(15 * time.Second)); err != nil {
		return nil, err
	}
	return s.readResponseNoDeadline()
}

func (s *Session) readResponseNoDeadline() (*response, error) {
	statusLine, err := s.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(strings.TrimSpace(statusLine), " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid status line: %s", statusLine)
	}
	statusCode, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid status code: %s", parts[1])
	}

	resp := &response{StatusCode: statusCode, Header: make(map[string]string)}

	var contentLength int
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if idx := strings.IndexByte(line, ':'); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			resp.Header[key] = value
			if key == "Content-Length" {
				contentLength, _ = strconv.Atoi(value)
			}
		}
	}

	if contentLength > 0 {
		body := make([]byte, contentLength)
		if _, err := io.ReadFull(s.reader, body); err != nil {
			return nil, err
		}
		resp.Body = body
	}

	if statusCode != 200 {
		return nil, fmt.Errorf("RTSP error: %d", statusCode)
	}
	return resp, nil
}

type request struct {
	Method string
	URL    string
	Header map[string]string
	CSeq   int
}

type response struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}
