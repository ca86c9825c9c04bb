package simple_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/simple"
)

func newTestFacade(t *testing.T, mux *http.ServeMux) (*simple.Facade, func()) {
	t.Helper()
	srv := httptest.NewServer(mux)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	f := simple.New(u.Hostname(), port, nil)
	return f, func() {
		_ = f.Close()
		srv.Close()
	}
}

func TestFacade_StateAccessorsZeroBeforeAnyStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f, done := newTestFacade(t, mux)
	defer done()

	assert.Equal(t, 0, f.BatteryLevelPercent())
	assert.Equal(t, "", f.SerialNumberGlasses())
}

func TestFacade_StartRecording(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/api/recording:start", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"id":"R9"}}`))
	})
	f, done := newTestFacade(t, mux)
	defer done()

	id, err := f.StartRecording(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "R9", id)
}

func TestFacade_ReceiveGazeDatum_NoSensorAvailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f, done := newTestFacade(t, mux)
	defer done()

	_, err := f.ReceiveGazeDatum(t.Context(), 50*time.Millisecond)
	require.Error(t, err)
}

func TestFacade_CloseIsIdempotentSafe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f, done := newTestFacade(t, mux)
	done()
	require.NoError(t, f.Close(), "second Close")
}
