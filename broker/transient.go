package broker

import "sync"

// Transient records which queue names must be destroyed when their owning
// session becomes inactive. It holds names, not queue handles; a name whose
// queue was destroyed by other means simply no-ops at reclaim time.
type Transient struct {
	mu        sync.Mutex
	bySession map[string]map[string]struct{}
}

// NewTransient creates an empty registry.
func NewTransient() *Transient {
	return &Transient{bySession: make(map[string]map[string]struct{})}
}

// Register binds a queue name to a session's lifetime.
func (t *Transient) Register(session, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bySession[session] == nil {
		t.bySession[session] = make(map[string]struct{})
	}
	t.bySession[session][name] = struct{}{}
}

// Reclaim destroys every queue registered to the session and forgets it.
// Called only when the session's last connection has closed. Returns the
// names that were removed from the directory.
func (t *Transient) Reclaim(session string, dir *Directory) []string {
	t.mu.Lock()
	names := t.bySession[session]
	delete(t.bySession, session)
	t.mu.Unlock()

	removed := make([]string, 0, len(names))
	for name := range names {
		if dir.Remove(name) {
			removed = append(removed, name)
		}
	}
	return removed
}

// Union returns the set of all registered transient names, used to
// partition the diagnostics snapshot.
func (t *Transient) Union() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]struct{})
	for _, names := range t.bySession {
		for name := range names {
			out[name] = struct{}{}
		}
	}
	return out
}
