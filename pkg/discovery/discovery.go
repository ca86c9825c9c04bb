// Package discovery browses mDNS/DNS-SD for device advertisements and
// exposes a live set with add/remove events. Uses a grandcat/zeroconf
// resolver feeding a buffered entries channel into a local consumer
// goroutine that maintains an RWMutex-guarded device map.
package discovery

import (
	"context"
	"fmt"
	"iter"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS/DNS-SD service type devices advertise under.
const ServiceType = "_http._tcp"

// defaultTTL is used when a service entry carries no TTL of its own.
// ttlExpiryCheckInterval is how often the live set is scanned for expired
// entries.
const (
	defaultTTL             = 120 * time.Second
	ttlExpiryCheckInterval = 15 * time.Second
)

// DiscoveredDevice is an immutable record produced by discovery.
type DiscoveredDevice struct {
	Name       string
	Host       string
	IPv4       net.IP
	Port       int
	TXTRecords map[string]string
}

// ProductName, PhoneName and PhoneID decompose the instance name pattern
// "<product>:<phone_name>:<phone_id>".
func (d DiscoveredDevice) ProductName() string { p, _, _ := splitInstanceName(d.Name); return p }
func (d DiscoveredDevice) PhoneName() string   { _, n, _ := splitInstanceName(d.Name); return n }
func (d DiscoveredDevice) PhoneID() string     { _, _, id := splitInstanceName(d.Name); return id }

func splitInstanceName(name string) (product, phoneName, phoneID string) {
	parts := strings.SplitN(name, ":", 3)
	if len(parts) != 3 {
		return "", "", ""
	}
	return parts[0], parts[1], parts[2]
}

// EventKind distinguishes an Added from a Removed event.
type EventKind int

const (
	Added EventKind = iota
	Removed
)

// Event is one live-set change.
type Event struct {
	Kind   EventKind
	Name   string
	Device DiscoveredDevice // zero value on Removed
}

// DeviceNotFoundError is returned by One when no matching device appears
// before the timeout.
type DeviceNotFoundError struct {
	Pattern string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("discovery: no device matching %q found", e.Pattern)
}

// DiscoveryError wraps mDNS transport failures above the zeroconf layer.
type DiscoveryError struct {
	Op  string
	Err error
}

func (e *DiscoveryError) Error() string { return fmt.Sprintf("discovery: %s: %v", e.Op, e.Err) }
func (e *DiscoveryError) Unwrap() error { return e.Err }

// Browser maintains a live set of discovered devices.
type Browser struct {
	mu      sync.RWMutex
	devices map[string]DiscoveredDevice

	Events chan Event
}

// NewBrowser constructs a Browser with a buffered event channel.
func NewBrowser() *Browser {
	return &Browser{
		devices: make(map[string]DiscoveredDevice),
		Events:  make(chan Event, 32),
	}
}

// Start browses until ctx is canceled, publishing Added/Removed events.
// Safe to run in its own goroutine; Events is closed when Start returns.
func (b *Browser) Start(ctx context.Context) error {
	defer close(b.Events)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return &DiscoveryError{Op: "new_resolver", Err: err}
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lastSeen := make(map[string]time.Time)
		ttl := make(map[string]time.Duration)

		ticker := time.NewTicker(ttlExpiryCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device, ok := parseServiceEntry(entry)
				if !ok {
					continue
				}

				_, known := lastSeen[device.Name]
				lastSeen[device.Name] = time.Now()
				if entryTTL := time.Duration(entry.TTL) * time.Second; entryTTL > 0 {
					ttl[device.Name] = entryTTL
				} else {
					ttl[device.Name] = defaultTTL
				}

				b.mu.Lock()
				b.devices[device.Name] = device
				b.mu.Unlock()

				if !known {
					select {
					case b.Events <- Event{Kind: Added, Name: device.Name, Device: device}:
					case <-ctx.Done():
						return
					}
				}
			case now := <-ticker.C:
				for _, name := range expiredNames(now, lastSeen, ttl) {
					delete(lastSeen, name)
					delete(ttl, name)

					b.mu.Lock()
					delete(b.devices, name)
					b.mu.Unlock()

					select {
					case b.Events <- Event{Kind: Removed, Name: name}:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return &DiscoveryError{Op: "browse", Err: err}
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// expiredNames returns the names whose last-seen time plus TTL has passed
// as of now.
func expiredNames(now time.Time, lastSeen map[string]time.Time, ttl map[string]time.Duration) []string {
	var names []string
	for name, seenAt := range lastSeen {
		if now.Sub(seenAt) > ttl[name] {
			names = append(names, name)
		}
	}
	return names
}

func parseServiceEntry(entry *zeroconf.ServiceEntry) (DiscoveredDevice, bool) {
	if entry == nil {
		return DiscoveredDevice{}, false
	}
	if len(entry.AddrIPv4) == 0 {
		return DiscoveredDevice{}, false
	}

	txt := make(map[string]string, len(entry.Text))
	for _, kv := range entry.Text {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		}
	}

	return DiscoveredDevice{
		Name:       entry.Instance,
		Host:       entry.HostName,
		IPv4:       entry.AddrIPv4[0],
		Port:       entry.Port,
		TXTRecords: txt,
	}, true
}

// Snapshot returns the current live set.
func (b *Browser) Snapshot() []DiscoveredDevice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]DiscoveredDevice, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d)
	}
	return out
}

// One browses until timeout elapses or a device is found, whichever
// happens first, and returns the first discovered record.
func One(ctx context.Context, timeout time.Duration) (DiscoveredDevice, error) {
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := NewBrowser()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Start(browseCtx) }()

	select {
	case ev, ok := <-b.Events:
		cancel()
		<-errCh
		if !ok || ev.Kind != Added {
			return DiscoveredDevice{}, &DeviceNotFoundError{Pattern: ServiceType}
		}
		return ev.Device, nil
	case err := <-errCh:
		if err != nil {
			return DiscoveredDevice{}, err
		}
		return DiscoveredDevice{}, &DeviceNotFoundError{Pattern: ServiceType}
	}
}

// All returns a finite, restartable sequence of discovered devices: each
// call to the returned iter.Seq runs its own browse pass of timeout
// duration and yields devices in first-seen order.
func All(ctx context.Context, timeout time.Duration) iter.Seq[DiscoveredDevice] {
	return func(yield func(DiscoveredDevice) bool) {
		browseCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		b := NewBrowser()
		done := make(chan struct{})
		go func() { _ = b.Start(browseCtx); close(done) }()

		for {
			select {
			case ev, ok := <-b.Events:
				if !ok {
					return
				}
				if ev.Kind == Added {
					if !yield(ev.Device) {
						cancel()
						<-done
						return
					}
				}
			case <-done:
				return
			}
		}
	}
}
