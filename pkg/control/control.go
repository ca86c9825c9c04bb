// Package control implements the HTTP control client against
// http://<host>:<port>/api: an http.Client plus context.Context and
// typed-response-struct idiom, with a plain unauthenticated JSON REST
// client since the device API is unauthenticated on the LAN.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crestline-labs/eyelink-realtime/pkg/status"
	"github.com/crestline-labs/eyelink-realtime/pkg/wire"
)

// RecordingStartError carries the structured reason a recording failed to
// start.
type RecordingStartError struct {
	Reason  string
	Message string
}

func (e *RecordingStartError) Error() string {
	return fmt.Sprintf("control: recording start failed (%s): %s", e.Reason, e.Message)
}

// RecordingStopError is returned by recording_stop_and_save/recording_cancel.
type RecordingStopError struct {
	Message string
}

func (e *RecordingStopError) Error() string {
	return fmt.Sprintf("control: recording stop failed: %s", e.Message)
}

// ControlTransportError wraps a transport-level failure (connection,
// timeout) or any HTTP status of 400 or above; for the latter, Message
// holds the device-reported message, if any.
type ControlTransportError struct {
	Op         string
	StatusCode int
	Message    string // raw device-reported message, if any
	Err        error
}

func (e *ControlTransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("control: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("control: %s: status %d", e.Op, e.StatusCode)
}
func (e *ControlTransportError) Unwrap() error { return e.Err }

// DeviceError wraps a device-reported error for operations that don't have
// a more specific typed error (e.g. get_calibration).
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string { return fmt.Sprintf("control: device error: %s", e.Message) }

// Client is an HTTP client scoped to one device's control API. It holds a
// lazily-created *http.Client: after Close, the next operation creates a
// fresh connection.
type Client struct {
	baseURL string
	log     *slog.Logger

	mu     sync.Mutex
	client *http.Client
}

// New constructs a Client for http://host:port/api.
func New(host string, port int, log *slog.Logger) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d/api", host, port),
		log:     log,
	}
}

// Close releases the underlying HTTP connection pool. The client remains
// usable: the next request lazily redials.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.CloseIdleConnections()
		c.client = nil
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = &http.Client{Timeout: 15 * time.Second}
	}
	return c.client
}

type envelope struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("control: marshal %s body: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &ControlTransportError{Op: op, Err: err}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &ControlTransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ControlTransportError{Op: op, Err: err}
	}

	var env envelope
	_ = json.Unmarshal(raw, &env) // best-effort: some endpoints return bare bodies

	if resp.StatusCode >= 400 {
		if c.log != nil {
			c.log.Warn("control request failed", "op", op, "status", resp.StatusCode, "message", env.Message)
		}
		return &ControlTransportError{Op: op, StatusCode: resp.StatusCode, Message: env.Message, Err: fmt.Errorf("%s", env.Message)}
	}

	if out == nil {
		return nil
	}
	if len(env.Result) > 0 {
		return json.Unmarshal(env.Result, out)
	}
	return json.Unmarshal(raw, out)
}

// GetStatus fetches the full current status as a list of components.
func (c *Client) GetStatus(ctx context.Context) (status.Status, error) {
	var wire []json.RawMessage
	if err := c.do(ctx, "get_status", http.MethodGet, "/status", nil, &wire); err != nil {
		return status.Status{}, err
	}

	s := status.New()
	for _, raw := range wire {
		comp, err := status.ParseComponent(raw)
		if err != nil {
			if c.log != nil {
				c.log.Warn("dropping unknown status component", "error", err)
			}
			continue
		}
		s = s.Apply(comp)
	}
	return s, nil
}

// RecordingStart starts a recording and returns its id.
func (c *Client) RecordingStart(ctx context.Context) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "recording_start", http.MethodPost, "/recording:start", nil, &result); err != nil {
		var transportErr *ControlTransportError
		if ok := asTransport(err, &transportErr); ok && transportErr.StatusCode == http.StatusBadRequest {
			return "", &RecordingStartError{
				Reason:  recordingStartReason(transportErr.Message),
				Message: transportErr.Message,
			}
		}
		return "", err
	}
	return result.ID, nil
}

func asTransport(err error, target **ControlTransportError) bool {
	te, ok := err.(*ControlTransportError)
	if ok {
		*target = te
	}
	return ok
}

// recordingStartReason classifies a device-reported rejection message into
// one of the reasons the recording_start endpoint documents: template
// invalid, low battery, low storage, no wearer, no workspace, setup
// incomplete. Unrecognized messages fall back to "rejected".
func recordingStartReason(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "template"):
		return "template"
	case strings.Contains(lower, "battery"):
		return "battery"
	case strings.Contains(lower, "storage"):
		return "storage"
	case strings.Contains(lower, "wearer"):
		return "wearer"
	case strings.Contains(lower, "workspace"):
		return "workspace"
	case strings.Contains(lower, "setup"):
		return "setup"
	default:
		return "rejected"
	}
}

// RecordingStopAndSave stops the active recording and saves it.
func (c *Client) RecordingStopAndSave(ctx context.Context) error {
	return c.stopOp(ctx, "recording_stop_and_save", "/recording:stop_and_save")
}

// RecordingCancel stops the active recording without saving.
func (c *Client) RecordingCancel(ctx context.Context) error {
	return c.stopOp(ctx, "recording_cancel", "/recording:cancel")
}

func (c *Client) stopOp(ctx context.Context, op, path string) error {
	if err := c.do(ctx, op, http.MethodPost, path, nil, nil); err != nil {
		var transportErr *ControlTransportError
		if asTransport(err, &transportErr) {
			return &RecordingStopError{Message: transportErr.Error()}
		}
		return err
	}
	return nil
}

// Event is the result of send_event: the device's authoritative echo.
type Event struct {
	Name         string `json:"name"`
	RecordingID  string `json:"recording_id,omitempty"`
	TimestampUnixNS int64 `json:"timestamp"`
}

// SendEvent posts a named event, optionally pre-stamped with a
// nanosecond timestamp (e.g. offset-corrected via pkg/timeecho).
func (c *Client) SendEvent(ctx context.Context, name string, timestampUnixNS *int64) (Event, error) {
	body := map[string]any{"name": name}
	if timestampUnixNS != nil {
		body["timestamp"] = *timestampUnixNS
	}

	var ev Event
	if err := c.do(ctx, "send_event", http.MethodPost, "/event", body, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// GetTemplate fetches the recording template descriptor.
func (c *Client) GetTemplate(ctx context.Context) (status.Template, error) {
	var tmpl status.Template
	if err := c.do(ctx, "get_template", http.MethodGet, "/template", nil, &tmpl); err != nil {
		return status.Template{}, err
	}
	return tmpl, nil
}

// GetTemplateData fetches the previously submitted template answers.
func (c *Client) GetTemplateData(ctx context.Context) (status.TemplateResponse, error) {
	var resp status.TemplateResponse
	if err := c.do(ctx, "get_template_data", http.MethodGet, "/template/data", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PostTemplateData submits template answers. The server's acknowledgement
// is structurally empty; callers must not assume echoed values. A 400
// response is returned as an InvalidTemplateAnswersError whose Errors list
// is empty: the response body is not parsed into per-item errors.
func (c *Client) PostTemplateData(ctx context.Context, response status.TemplateResponse) error {
	if err := c.do(ctx, "post_template_data", http.MethodPost, "/template/data", response, nil); err != nil {
		var transportErr *ControlTransportError
		if asTransport(err, &transportErr) && transportErr.StatusCode == http.StatusBadRequest {
			return &status.InvalidTemplateAnswersError{}
		}
		return err
	}
	return nil
}

// DeviceErrorEntry is one entry from get_errors.
type DeviceErrorEntry struct {
	Message   string `json:"message"`
	Component string `json:"component,omitempty"`
}

// GetErrors fetches the device-side error log.
func (c *Client) GetErrors(ctx context.Context) ([]DeviceErrorEntry, error) {
	var errs []DeviceErrorEntry
	if err := c.do(ctx, "get_errors", http.MethodGet, "/errors", nil, &errs); err != nil {
		return nil, err
	}
	return errs, nil
}

// Calibration is the parsed device calibration blob: scene and left/right
// eye camera matrices, distortion coefficients and extrinsics, with an
// IEEE CRC-32 trailer validated on read.
type Calibration struct {
	SceneCameraMatrix    [9]float32
	SceneDistortion      [8]float32
	LeftEyeCameraMatrix  [9]float32
	LeftEyeDistortion    [8]float32
	RightEyeCameraMatrix [9]float32
	RightEyeDistortion   [8]float32
	Extrinsics           [16]float32 // 4x4 row-major
}

const calibrationBodyLen = (9 + 8 + 9 + 8 + 9 + 8 + 16) * 4

// GetCalibration fetches and parses the binary calibration blob, validating
// its trailing IEEE CRC-32 checksum. The corpus's only checksum libraries
// (sigurn/crc16, sigurn/crc8) implement different, incompatible algorithms,
// so the standard library's IEEE CRC-32 is used directly (see DESIGN.md).
func (c *Client) GetCalibration(ctx context.Context) (Calibration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calibration", nil)
	if err != nil {
		return Calibration{}, &ControlTransportError{Op: "get_calibration", Err: err}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Calibration{}, &ControlTransportError{Op: "get_calibration", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Calibration{}, &ControlTransportError{Op: "get_calibration", Err: err}
	}
	if resp.StatusCode >= 400 {
		return Calibration{}, &DeviceError{Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	if len(raw) != calibrationBodyLen+4 {
		return Calibration{}, &DeviceError{Message: fmt.Sprintf("unexpected calibration blob length %d", len(raw))}
	}

	body := raw[:calibrationBodyLen]
	trailer := raw[calibrationBodyLen:]

	want := crc32.ChecksumIEEE(body)
	got := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])
	if want != got {
		return Calibration{}, &DeviceError{Message: "calibration blob failed CRC-32 check"}
	}

	return decodeCalibration(body), nil
}

func decodeCalibration(body []byte) Calibration {
	var cal Calibration
	r := wire.NewReader(body)
	readFloats := func(dst []float32) {
		for i := range dst {
			dst[i] = r.F32BE()
		}
	}
	readFloats(cal.SceneCameraMatrix[:])
	readFloats(cal.SceneDistortion[:])
	readFloats(cal.LeftEyeCameraMatrix[:])
	readFloats(cal.LeftEyeDistortion[:])
	readFloats(cal.RightEyeCameraMatrix[:])
	readFloats(cal.RightEyeDistortion[:])
	readFloats(cal.Extrinsics[:])
	return cal
}
