// Package broker implements the message-switch core: the queue directory,
// session/connection lifecycle, the trace ring, the request dispatcher and
// the long-poll transfer engine. Transport facades call Dispatch with a
// connection-scoped id and report closed connections through Disconnect.
package broker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/djs55/message-switch/broker/events"
	"github.com/djs55/message-switch/broker/webhook"
	"github.com/djs55/message-switch/clock"
	"github.com/djs55/message-switch/protocol"
	"github.com/djs55/message-switch/trace"
)

// Options configures a Switch.
type Options struct {
	Logger        *slog.Logger
	SwitchID      string
	TraceCapacity int
	WWWRoot       string
	Notifier      webhook.Notifier
}

// Switch is the broker context: all process-wide mutable state, carried
// explicitly rather than as package globals.
type Switch struct {
	logger    *slog.Logger
	clock     *clock.Clock
	dir       *Directory
	conns     *Connections
	transient *Transient
	ring      *trace.Ring
	stats     *Stats
	notifier  webhook.Notifier
	switchID  string
	wwwRoot   string
}

// New creates a switch with empty state.
func New(opts Options) *Switch {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switchID := opts.SwitchID
	if switchID == "" {
		switchID = "switch-1"
	}

	return &Switch{
		logger:    logger,
		clock:     clock.New(),
		dir:       NewDirectory(),
		conns:     NewConnections(),
		transient: NewTransient(),
		ring:      trace.NewRing(opts.TraceCapacity),
		stats:     NewStats(),
		notifier:  opts.Notifier,
		switchID:  switchID,
		wwwRoot:   opts.WWWRoot,
	}
}

// Directory returns the queue directory.
func (s *Switch) Directory() *Directory {
	return s.dir
}

// Connections returns the connection table.
func (s *Switch) Connections() *Connections {
	return s.conns
}

// Trace returns the trace ring.
func (s *Switch) Trace() *trace.Ring {
	return s.ring
}

// Stats returns the switch statistics.
func (s *Switch) Stats() *Stats {
	return s.stats
}

// Connect records a new transport connection. The facade calls this once
// per accepted connection, before any request is dispatched on it.
func (s *Switch) Connect(connID string) {
	s.stats.IncrementConnections()
	s.logger.Debug("connection_opened", slog.String("conn_id", connID))
}

// Disconnect handles a closed transport connection: the connection is
// detached from its session, and if the session just became inactive its
// transient queues are reclaimed.
func (s *Switch) Disconnect(connID string) {
	s.stats.DecrementConnections()

	session, nowInactive := s.conns.RemoveConn(connID)
	if !nowInactive {
		s.logger.Debug("connection_closed", slog.String("conn_id", connID))
		return
	}

	removed := s.transient.Reclaim(session, s.dir)
	s.stats.IncrementSessionsEnded()
	s.stats.AddQueuesReclaimed(len(removed))
	s.logger.Info("session_ended",
		slog.String("session", session),
		slog.Int("reclaimed_queues", len(removed)))

	for _, name := range removed {
		s.notify(events.QueueDestroyed{Name: name})
	}
	s.notify(events.SessionEnded{Session: session, ReclaimedQueues: removed})
}

// notify forwards an event to the webhook notifier, if one is attached.
func (s *Switch) notify(ev events.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.Background(), ev); err != nil {
		s.logger.Warn("webhook_notify_failed",
			slog.String("event_type", ev.Type()),
			slog.String("error", err.Error()))
	}
}

// traceEvent appends an event to the trace ring.
func (s *Switch) traceEvent(ev protocol.TraceEvent) {
	s.ring.Append(ev)
	s.stats.IncrementTraceEvents()
}

// readAsset reads a static asset under the www root. The empty path is
// normalized to index.html; the path is re-rooted so it cannot escape.
func (s *Switch) readAsset(path string) ([]byte, error) {
	if path == "" {
		path = "index.html"
	}
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	return os.ReadFile(filepath.Join(s.wwwRoot, clean))
}
