package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/notify"
	"github.com/crestline-labs/eyelink-realtime/pkg/status"
)

func fakeStatusServer(t *testing.T, messages [][]byte) (port int, stop func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, m); err != nil {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err = strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port, srv.Close
}

func TestNotifier_AppliesComponentsAndFansOut(t *testing.T) {
	msgs := [][]byte{
		[]byte(`{"model":"Phone","data":{"device_id":"p1","device_name":"n","battery_level_percent":80,"battery_state":"OK","ip":"1.1.1.1","memory_bytes_free":1,"memory_state":"OK","time_echo_port":1}}`),
		[]byte(`{"model":"Phone","data":{"device_id":"p1","device_name":"n","battery_level_percent":79,"battery_state":"OK","ip":"1.1.1.1","memory_bytes_free":1,"memory_state":"OK","time_echo_port":1}}`),
	}
	port, stop := fakeStatusServer(t, msgs)
	defer stop()

	n := notify.New("127.0.0.1", port, nil)

	var deliveries atomic.Int32
	n.Subscribe(func(c status.Component, s status.Status) {
		deliveries.Add(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	deadline := time.After(1 * time.Second)
	for {
		snap := n.Snapshot()
		if snap.Phone.BatteryLevelPercent == 79 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for status update")
		case <-time.After(10 * time.Millisecond):
		}
	}

	assert.Equal(t, int32(2), deliveries.Load())
	cancel()
	<-done
}

func TestNotifier_SeedSnapshot(t *testing.T) {
	n := notify.New("127.0.0.1", 0, nil)
	seed := status.New().Apply(status.Phone{DeviceID: "p1", BatteryLevelPercent: 50})
	n.SeedSnapshot(seed)
	assert.Equal(t, 50, n.Snapshot().Phone.BatteryLevelPercent)
}
