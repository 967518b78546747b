package broker

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/djs55/message-switch/broker/events"
	"github.com/djs55/message-switch/protocol"
)

// transfer implements the long-poll primitive: return everything after the
// cursor on the requested queues, or block until something arrives, a queue
// is deleted, the timeout expires or the caller goes away.
//
// One waiter is registered on every live requested queue before the first
// peek, so an enqueue between peek and wait cannot be missed. Requested
// queues that do not exist are treated as empty; a queue deleted while the
// transfer is blocked fails the whole transfer with ErrQueueDeleted.
func (s *Switch) transfer(ctx context.Context, session string, req protocol.Transfer) (protocol.Response, error) {
	cursor := int64(-1)
	if req.From != nil {
		cursor = *req.From
	}
	timeout := time.Duration(req.Timeout * float64(time.Second))
	deadlineNs := s.clock.Ns() + int64(timeout)

	s.stats.IncrementTransfers()

	w := newWaiter()
	var watched []*Queue
	defer func() {
		for _, q := range watched {
			q.removeWaiter(w)
		}
	}()

	for _, name := range req.Queues {
		q, ok := s.dir.Find(name)
		if !ok {
			continue
		}
		q.setTransferDeadline(deadlineNs)
		if err := q.addWaiter(w); err != nil {
			return nil, err
		}
		watched = append(watched, q)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		batch := s.collect(req.Queues, cursor)
		if len(batch) > 0 {
			return s.deliver(session, req.From, batch), nil
		}

		select {
		case err := <-w.ch:
			if err != nil {
				s.logger.Debug("transfer_queue_deleted", slog.String("session", session))
				return nil, err
			}
			// woken; re-peek
		case <-timer.C:
			s.stats.IncrementTransferTimeouts()
			return protocol.TransferResponse{
				Messages: []protocol.TransferItem{},
				Next:     emptyNext(req.From),
			}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// collect gathers everything after the cursor across the requested queues,
// preserving per-queue order. Missing queues contribute nothing.
func (s *Switch) collect(names []string, cursor int64) []protocol.TransferItem {
	var out []protocol.TransferItem
	for _, name := range names {
		q, ok := s.dir.Find(name)
		if !ok {
			continue
		}
		for _, it := range q.PeekAfter(cursor) {
			out = append(out, protocol.TransferItem{ID: it.ID, Message: it.Entry.Message})
		}
	}
	return out
}

// deliver packages a non-empty batch, records one trace event per message
// and computes the resume cursor. A delivered response whose correlated
// request entry is still findable carries the request-to-response latency.
func (s *Switch) deliver(session string, from *int64, batch []protocol.TransferItem) protocol.TransferResponse {
	now := s.clock.Ns()
	next := int64(-1)
	if from != nil {
		next = *from
	}

	for i := range batch {
		item := batch[i]
		if item.ID.Index > next {
			next = item.ID.Index
		}

		msg := item.Message
		ev := protocol.TraceEvent{
			Time:   s.clock.WallSeconds(),
			Output: &session,
			Queue:  item.ID.Queue,
			Message: protocol.TraceMessage{
				Kind:    "message",
				ID:      item.ID,
				Message: &msg,
			},
		}
		if msg.Kind == protocol.KindResponse {
			if q, ok := s.dir.Find(msg.Correlates.Queue); ok {
				if entry, found := q.Find(msg.Correlates); found {
					elapsed := now - entry.EnqueuedNs
					ev.ProcessingNs = &elapsed
				}
			}
		}
		s.traceEvent(ev)
		s.notify(events.MessageDelivered{
			QueueName: item.ID.Queue,
			Index:     item.ID.Index,
			Session:   session,
		})
	}

	s.stats.AddDelivered(len(batch))
	return protocol.TransferResponse{
		Messages: batch,
		Next:     strconv.FormatInt(next, 10),
	}
}

// emptyNext echoes the caller's cursor when nothing was delivered.
func emptyNext(from *int64) string {
	if from == nil {
		return "-1"
	}
	return strconv.FormatInt(*from, 10)
}
