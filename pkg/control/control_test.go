package control_test

import (
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/control"
)

func newTestClient(t *testing.T, handler http.Handler) (*control.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return control.New(u.Hostname(), port, nil), srv.Close
}

func TestGetStatus_ParsesComponents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"model":"Phone","data":{"device_id":"p1","device_name":"n","battery_level_percent":80,"battery_state":"OK","ip":"1.1.1.1","memory_bytes_free":100,"memory_state":"OK","time_echo_port":9000}},
			{"model":"Hardware","data":{"version":"1","module_serial":"m1","glasses_serial":"g1","world_camera_serial":"w1"}}
		]}`))
	})
	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	st, err := c.GetStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 80, st.Phone.BatteryLevelPercent)
}

func TestRecordingStart_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/recording:start", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"id":"R1"}}`))
	})
	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	id, err := c.RecordingStart(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "R1", id)
}

func TestRecordingStart_TemplateRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/recording:start", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"template invalid"}`))
	})
	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	_, err := c.RecordingStart(t.Context())
	require.Error(t, err)
	var startErr *control.RecordingStartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "template", startErr.Reason)
}

func TestGetCalibration_ValidatesCRC(t *testing.T) {
	body := make([]byte, (9+8+9+8+9+8+16)*4)
	crc := crc32.ChecksumIEEE(body)
	trailer := []byte{byte(crc >> 24), byte(crc >> 16), byte(crc >> 8), byte(crc)}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/calibration", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(append(body, trailer...))
	})
	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	_, err := c.GetCalibration(t.Context())
	require.NoError(t, err)
}

func TestGetCalibration_BadCRC(t *testing.T) {
	body := make([]byte, (9+8+9+8+9+8+16)*4)
	badTrailer := []byte{0, 0, 0, 0}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/calibration", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(append(body, badTrailer...))
	})
	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	_, err := c.GetCalibration(t.Context())
	require.Error(t, err)
}

func TestPostTemplateData_InvalidAnswers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/template/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	err := c.PostTemplateData(t.Context(), map[string][]string{"Q1": {""}})
	require.Error(t, err)
}
