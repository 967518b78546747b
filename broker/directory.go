package broker

import (
	"sort"
	"strings"
	"sync"
)

// Directory maps queue names to live queues. It exclusively owns them:
// a queue exists exactly while its name is linked here, and removal both
// unlinks the name and wakes the queue's waiters as one observable step.
type Directory struct {
	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{queues: make(map[string]*Queue)}
}

// Add creates the named queue if absent. Idempotent: an existing name is
// left untouched. Returns the queue and whether it was created.
func (d *Directory) Add(name string) (*Queue, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[name]; ok {
		return q, false
	}
	q := newQueue(name)
	d.queues[name] = q
	return q, true
}

// Remove unlinks the named queue, evicting its contents and waking its
// waiters with the deletion signal. Idempotent for absent names. Reports
// whether a queue was removed.
func (d *Directory) Remove(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[name]
	if !ok {
		return false
	}
	// Unlinking the name and waking the waiters are one observable step:
	// nobody can find the queue live after a waiter saw the deletion signal.
	delete(d.queues, name)
	q.delete()
	return true
}

// Find returns the named queue if it is live.
func (d *Directory) Find(name string) (*Queue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	q, ok := d.queues[name]
	return q, ok
}

// List returns the sorted names with the given prefix. The empty prefix
// matches everything.
func (d *Directory) List(prefix string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.queues))
	for name := range d.queues {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
