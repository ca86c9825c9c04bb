// Package match implements a nearest-timestamp fusion engine: one leader
// stream plus N followers, each backed by a bounded ordered queue keyed
// by wall-clock timestamp. Each follower's bounded queue is a priority
// queue (container/heap, keyed by timestamp), paired with a wait/drain
// timing discipline for the leader-wait loop.
package match

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Sample is one timestamped datum pushed into the matcher.
type Sample struct {
	WallClockNS int64
	Payload     any
}

// Overflow is returned by Push when a stream's bounded queue is full; the
// oldest sample on that stream was dropped to make room.
type Overflow struct {
	Stream string
}

func (e *Overflow) Error() string { return fmt.Sprintf("match: stream %q queue overflowed", e.Stream) }

// Fused is one output tuple: the leader sample plus the nearest sample
// from each follower (nil when that follower had nothing in its window).
type Fused struct {
	Leader    Sample
	Followers map[string]*Sample
}

// sampleHeap is a min-heap of Sample ordered by WallClockNS.
type sampleHeap []Sample

func (h sampleHeap) Len() int            { return len(h) }
func (h sampleHeap) Less(i, j int) bool  { return h[i].WallClockNS < h[j].WallClockNS }
func (h sampleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *sampleHeap) Push(x interface{}) { *h = append(*h, x.(Sample)) }
func (h *sampleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// queue is one stream's bounded ordered sample queue.
type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    sampleHeap
	maxDepth int
	latest   int64 // highest WallClockNS ever pushed, for "has anything arrived past cutoff" checks
}

func newQueue(maxDepth int) *queue {
	q := &queue{maxDepth: maxDepth}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push inserts a sample, dropping the oldest entry and returning Overflow
// if the queue is already at capacity.
func (q *queue) push(stream string, s Sample) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var overflow error
	if len(q.items) >= q.maxDepth {
		heap.Pop(&q.items)
		overflow = &Overflow{Stream: stream}
	}
	heap.Push(&q.items, s)
	if s.WallClockNS > q.latest {
		q.latest = s.WallClockNS
	}
	q.cond.Broadcast()
	return overflow
}

func (q *queue) latestTimestamp() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latest
}

// peekMin returns the earliest-timestamped sample without removing it.
func (q *queue) peekMin() (Sample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Sample{}, false
	}
	return q.items[0], true
}

// nearestAndEvict finds the sample minimizing |ts-target|, ties broken by
// the later timestamp, and evicts every sample strictly older than cutoff
// (they can no longer be the best match for any future leader sample).
func (q *queue) nearestAndEvict(target, cutoff int64) (Sample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best Sample
	found := false
	for _, s := range q.items {
		if !found {
			best, found = s, true
			continue
		}
		d := absInt64(s.WallClockNS - target)
		bestD := absInt64(best.WallClockNS - target)
		if d < bestD || (d == bestD && s.WallClockNS > best.WallClockNS) {
			best = s
		}
	}

	for len(q.items) > 0 && q.items[0].WallClockNS < cutoff {
		heap.Pop(&q.items)
	}

	return best, found
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// DefaultWaitWindow is used when a Matcher is constructed without an
// explicit per-follower wait window.
const DefaultWaitWindow = 1 * time.Second

// DefaultMaxDepth bounds each stream's queue when not overridden.
const DefaultMaxDepth = 256

// Matcher fuses one leader stream with N follower streams by nearest
// wall-clock timestamp.
type Matcher struct {
	leaderID   string
	leader     *queue
	followers  map[string]*queue
	window     int64 // nanoseconds
	waitWindow time.Duration
}

// New constructs a Matcher. window bounds how far a follower sample may be
// from the leader timestamp to still match; New applies no default to it,
// so the caller supplies it (pkg/simple passes 40ms). waitWindow bounds how long Next waits for a follower to
// produce any sample before emitting it as nil.
func New(leaderID string, followerIDs []string, window time.Duration, waitWindow time.Duration) *Matcher {
	if waitWindow <= 0 {
		waitWindow = DefaultWaitWindow
	}
	followers := make(map[string]*queue, len(followerIDs))
	for _, id := range followerIDs {
		followers[id] = newQueue(DefaultMaxDepth)
	}
	return &Matcher{
		leaderID:   leaderID,
		leader:     newQueue(DefaultMaxDepth),
		followers:  followers,
		window:     window.Nanoseconds(),
		waitWindow: waitWindow,
	}
}

// Push enqueues a sample for streamID (the leader or any follower).
func (m *Matcher) Push(streamID string, s Sample) error {
	if streamID == m.leaderID {
		return m.leader.push(streamID, s)
	}
	q, ok := m.followers[streamID]
	if !ok {
		return fmt.Errorf("match: unknown stream %q", streamID)
	}
	return q.push(streamID, s)
}

// Next blocks until the next leader sample is available and every
// follower has either produced a sample within the wait window or the
// window has elapsed, then returns the fused tuple.
func (m *Matcher) Next(ctx context.Context) (Fused, error) {
	leaderSample, err := m.waitForLeader(ctx)
	if err != nil {
		return Fused{}, err
	}

	tL := leaderSample.WallClockNS
	cutoff := tL - m.window

	result := Fused{Leader: leaderSample, Followers: make(map[string]*Sample, len(m.followers))}

	for id, q := range m.followers {
		if _, ok := m.waitForFollower(ctx, q, cutoff); !ok {
			result.Followers[id] = nil
			continue
		}
		best, found := q.nearestAndEvict(tL, cutoff)
		if !found || absInt64(best.WallClockNS-tL) > m.window {
			result.Followers[id] = nil
			continue
		}
		s := best
		result.Followers[id] = &s
	}

	return result, nil
}

func (m *Matcher) waitForLeader(ctx context.Context) (Sample, error) {
	m.leader.mu.Lock()
	defer m.leader.mu.Unlock()

	for len(m.leader.items) == 0 {
		if ctx.Err() != nil {
			return Sample{}, ctx.Err()
		}
		waitOnCond(ctx, m.leader.cond)
		if ctx.Err() != nil {
			return Sample{}, ctx.Err()
		}
	}
	return heap.Pop(&m.leader.items).(Sample), nil
}

// waitForFollower blocks until q has a sample with timestamp >= cutoff, or
// the matcher's wait window elapses. Polling is paced by a token-bucket
// limiter rather than a bare sleep.
func (m *Matcher) waitForFollower(ctx context.Context, q *queue, cutoff int64) (Sample, bool) {
	deadline := time.Now().Add(m.waitWindow)
	limiter := rate.NewLimiter(rate.Every(time.Millisecond), 1)

	for {
		if q.latestTimestamp() >= cutoff {
			s, _ := q.peekMin()
			return s, true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return Sample{}, false
		}
		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		err := limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return Sample{}, false
		}
	}
}

// waitOnCond waits on cond with cancellation: since sync.Cond has no
// context-aware Wait, a watcher goroutine broadcasts on ctx cancellation.
func waitOnCond(ctx context.Context, cond *sync.Cond) {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
		close(done)
	})
	defer stop()
	cond.Wait()
}
