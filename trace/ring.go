// Package trace keeps a bounded, cursor-addressable log of broker events
// with blocking catch-up reads.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/djs55/message-switch/protocol"
)

// DefaultCapacity bounds the ring when no capacity is configured.
const DefaultCapacity = 1024

// Ring is a bounded event log. Cursors increase strictly and are never
// reused; the oldest events are evicted once capacity is reached.
type Ring struct {
	mu       sync.Mutex
	capacity int
	next     int64
	items    []protocol.TraceItem
	waiters  map[chan struct{}]struct{}
}

// NewRing creates a ring holding up to capacity events. A non-positive
// capacity selects the default.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		capacity: capacity,
		waiters:  make(map[chan struct{}]struct{}),
	}
}

// Append stores an event, assigns its cursor and wakes blocked readers.
func (r *Ring) Append(ev protocol.TraceEvent) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursor := r.next
	r.next++
	r.items = append(r.items, protocol.TraceItem{Cursor: cursor, Event: ev})
	if len(r.items) > r.capacity {
		r.items = r.items[len(r.items)-r.capacity:]
	}

	for ch := range r.waiters {
		close(ch)
	}
	r.waiters = make(map[chan struct{}]struct{})

	return cursor
}

// After returns all stored events with cursor greater than from.
func (r *Ring) After(from int64) []protocol.TraceItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.afterLocked(from)
}

func (r *Ring) afterLocked(from int64) []protocol.TraceItem {
	i := 0
	for i < len(r.items) && r.items[i].Cursor <= from {
		i++
	}
	if i == len(r.items) {
		return nil
	}
	out := make([]protocol.TraceItem, len(r.items)-i)
	copy(out, r.items[i:])
	return out
}

// Get returns events after the cursor, blocking up to timeout for new ones
// when none are available. A timeout is not an error: the result is empty.
func (r *Ring) Get(ctx context.Context, from int64, timeout time.Duration) ([]protocol.TraceItem, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		items := r.afterLocked(from)
		if len(items) > 0 {
			r.mu.Unlock()
			return items, nil
		}
		wake := make(chan struct{})
		r.waiters[wake] = struct{}{}
		r.mu.Unlock()

		select {
		case <-wake:
		case <-deadline.C:
			r.dropWaiter(wake)
			return nil, nil
		case <-ctx.Done():
			r.dropWaiter(wake)
			return nil, ctx.Err()
		}
	}
}

func (r *Ring) dropWaiter(ch chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.waiters, ch)
}
