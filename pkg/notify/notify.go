// Package notify implements the WebSocket status-mirror subscriber
// against ws://<host>:<port>/api/status. Dialer uses the standard
// gorilla/websocket websocket.DefaultDialer.Dial pattern; subscriber
// fan-out generalizes a single-callback disconnect-notification shape to
// an arbitrary subscriber list.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/crestline-labs/eyelink-realtime/pkg/status"
)

// Subscriber receives every successfully parsed component, plus the
// Status snapshot it was just applied to.
type Subscriber func(component status.Component, snapshot status.Status)

// Notifier mirrors a device's Status by consuming its WebSocket status
// channel. Reconnection is the caller's responsibility.
type Notifier struct {
	url string
	log *slog.Logger

	mu          sync.RWMutex
	current     status.Status
	subscribers []Subscriber

	conn *websocket.Conn
}

// New constructs a Notifier for ws://host:port/api/status.
func New(host string, port int, log *slog.Logger) *Notifier {
	return &Notifier{
		url:     fmt.Sprintf("ws://%s:%d/api/status", host, port),
		log:     log,
		current: status.New(),
	}
}

// Subscribe registers a callback invoked on every applied component.
func (n *Notifier) Subscribe(sub Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, sub)
}

// Snapshot returns the current cached Status.
func (n *Notifier) Snapshot() status.Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// SeedSnapshot primes the cache (e.g. with the Control client's initial
// get_status fetch) before Run starts consuming deltas.
func (n *Notifier) SeedSnapshot(s status.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = s
}

// Run dials the WebSocket and consumes component deltas until ctx is
// canceled or the connection terminates. It returns the terminal error,
// never nil on a non-cancellation exit, so the caller can tell a clean
// shutdown from a dropped connection.
func (n *Notifier) Run(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return fmt.Errorf("notify: dial: %w", err)
	}
	n.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("notify: read: %w", err)
		}

		comp, err := status.ParseComponent(raw)
		if err != nil {
			if n.log != nil {
				n.log.Warn("dropping unknown status component", "error", err)
			}
			continue
		}

		n.mu.Lock()
		n.current = n.current.Apply(comp)
		snapshot := n.current
		subs := append([]Subscriber(nil), n.subscribers...)
		n.mu.Unlock()

		for _, sub := range subs {
			sub(comp, snapshot)
		}
	}
}

// Close terminates the active connection, if any.
func (n *Notifier) Close() error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
