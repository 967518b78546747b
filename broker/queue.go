package broker

import (
	"errors"
	"sort"
	"sync"

	"github.com/djs55/message-switch/protocol"
)

// ErrQueueDeleted signals a waiter that the queue it was blocked on has been
// removed. Distinguishable from a timeout: a deleted queue fails the whole
// transfer.
var ErrQueueDeleted = errors.New("queue deleted")

// Item is one queued message with its id.
type Item struct {
	ID    protocol.MessageID
	Entry protocol.Entry
}

// waiter receives wake-up signals from the queues a transfer is blocked on.
// The channel is buffered so wakes never block the enqueuer; collapsed wakes
// are fine because woken waiters re-peek.
type waiter struct {
	ch chan error
}

func newWaiter() *waiter {
	return &waiter{ch: make(chan error, 1)}
}

func (w *waiter) signal(err error) {
	select {
	case w.ch <- err:
	default:
	}
}

// Queue is the ordered store for one named queue. Indices start at 1,
// increase strictly and are never reused within a broker run. Entries are
// immutable once appended; Ack removes them pointwise.
type Queue struct {
	name string

	mu                   sync.Mutex
	nextIndex            int64
	items                []Item
	waiters              map[*waiter]struct{}
	nextTransferExpected int64 // ns deadline, 0 when never polled
	deleted              bool
}

func newQueue(name string) *Queue {
	return &Queue{
		name:      name,
		nextIndex: 1,
		waiters:   make(map[*waiter]struct{}),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue appends a message, assigns its id and wakes every waiter. Never
// blocks.
func (q *Queue) Enqueue(origin protocol.Origin, enqueuedNs int64, msg protocol.Message) protocol.MessageID {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := protocol.MessageID{Queue: q.name, Index: q.nextIndex}
	q.nextIndex++
	q.items = append(q.items, Item{
		ID: id,
		Entry: protocol.Entry{
			Origin:     origin,
			EnqueuedNs: enqueuedNs,
			Message:    msg,
		},
	})

	for w := range q.waiters {
		w.signal(nil)
	}
	return id
}

// Ack removes the entry with the given index. Absent ids are a silent
// no-op, so acks are idempotent. Waiters are not woken.
func (q *Queue) Ack(id protocol.MessageID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.searchLocked(id.Index)
	if i < len(q.items) && q.items[i].ID.Index == id.Index {
		q.items = append(q.items[:i], q.items[i+1:]...)
	}
}

// Contents returns a snapshot of the queued items in order.
func (q *Queue) Contents() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Find looks up an entry by id.
func (q *Queue) Find(id protocol.MessageID) (protocol.Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.searchLocked(id.Index)
	if i < len(q.items) && q.items[i].ID.Index == id.Index {
		return q.items[i].Entry, true
	}
	return protocol.Entry{}, false
}

// PeekAfter returns all items with index greater than cursor, in order.
// Cursor -1 returns everything.
func (q *Queue) PeekAfter(cursor int64) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.searchLocked(cursor + 1)
	if i == len(q.items) {
		return nil
	}
	out := make([]Item, len(q.items)-i)
	copy(out, q.items[i:])
	return out
}

// searchLocked returns the position of the first item with index >= target.
func (q *Queue) searchLocked(target int64) int {
	return sort.Search(len(q.items), func(i int) bool {
		return q.items[i].ID.Index >= target
	})
}

// addWaiter registers a wake-up channel. Returns ErrQueueDeleted if the
// queue is already gone.
func (q *Queue) addWaiter(w *waiter) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.deleted {
		return ErrQueueDeleted
	}
	q.waiters[w] = struct{}{}
	return nil
}

// removeWaiter cancels a registration. Safe to call after deletion.
func (q *Queue) removeWaiter(w *waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.waiters, w)
}

// setTransferDeadline records when the next transfer on this queue is
// expected to give up. Purely diagnostic; last writer wins.
func (q *Queue) setTransferDeadline(ns int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextTransferExpected = ns
}

// transferDeadline returns the recorded deadline, if any transfer has run.
func (q *Queue) transferDeadline() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.nextTransferExpected, q.nextTransferExpected != 0
}

// delete marks the queue dead, evicts its contents and wakes every waiter
// with the deletion signal. Called by the directory with the name already
// unlinked.
func (q *Queue) delete() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.deleted = true
	q.items = nil
	for w := range q.waiters {
		w.signal(ErrQueueDeleted)
	}
	q.waiters = make(map[*waiter]struct{})
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
