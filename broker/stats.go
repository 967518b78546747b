package broker

import (
	"sync/atomic"
	"time"
)

// Stats tracks switch counters for the health endpoint and metrics export.
type Stats struct {
	startTime time.Time

	// Connection stats
	totalConnections   atomic.Uint64
	currentConnections atomic.Uint64
	disconnections     atomic.Uint64

	// Session stats
	logins          atomic.Uint64
	sessionsEnded   atomic.Uint64
	queuesReclaimed atomic.Uint64

	// Message stats
	messagesEnqueued  atomic.Uint64
	messagesDelivered atomic.Uint64
	messagesAcked     atomic.Uint64

	// Transfer stats
	transfers        atomic.Uint64
	transferTimeouts atomic.Uint64

	// Trace stats
	traceEvents atomic.Uint64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) IncrementConnections() {
	s.totalConnections.Add(1)
	s.currentConnections.Add(1)
}

func (s *Stats) DecrementConnections() {
	s.currentConnections.Add(^uint64(0))
	s.disconnections.Add(1)
}

func (s *Stats) IncrementLogins()           { s.logins.Add(1) }
func (s *Stats) IncrementSessionsEnded()    { s.sessionsEnded.Add(1) }
func (s *Stats) AddQueuesReclaimed(n int)   { s.queuesReclaimed.Add(uint64(n)) }
func (s *Stats) IncrementEnqueued()         { s.messagesEnqueued.Add(1) }
func (s *Stats) AddDelivered(n int)         { s.messagesDelivered.Add(uint64(n)) }
func (s *Stats) IncrementAcked()            { s.messagesAcked.Add(1) }
func (s *Stats) IncrementTransfers()        { s.transfers.Add(1) }
func (s *Stats) IncrementTransferTimeouts() { s.transferTimeouts.Add(1) }
func (s *Stats) IncrementTraceEvents()      { s.traceEvents.Add(1) }

func (s *Stats) GetTotalConnections() uint64   { return s.totalConnections.Load() }
func (s *Stats) GetCurrentConnections() uint64 { return s.currentConnections.Load() }
func (s *Stats) GetDisconnections() uint64     { return s.disconnections.Load() }
func (s *Stats) GetLogins() uint64             { return s.logins.Load() }
func (s *Stats) GetSessionsEnded() uint64      { return s.sessionsEnded.Load() }
func (s *Stats) GetQueuesReclaimed() uint64    { return s.queuesReclaimed.Load() }
func (s *Stats) GetMessagesEnqueued() uint64   { return s.messagesEnqueued.Load() }
func (s *Stats) GetMessagesDelivered() uint64  { return s.messagesDelivered.Load() }
func (s *Stats) GetMessagesAcked() uint64      { return s.messagesAcked.Load() }
func (s *Stats) GetTransfers() uint64          { return s.transfers.Load() }
func (s *Stats) GetTransferTimeouts() uint64   { return s.transferTimeouts.Load() }
func (s *Stats) GetTraceEvents() uint64        { return s.traceEvents.Load() }

// GetUptime returns time elapsed since the switch started.
func (s *Stats) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
