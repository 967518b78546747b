package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/djs55/message-switch/broker/events"
	"github.com/djs55/message-switch/protocol"
)

// ErrStaticNotFound marks a Get for an asset that does not exist. The
// transport answers it with 404.
var ErrStaticNotFound = errors.New("static asset not found")

// Dispatch routes one request. Expected conditions are encoded in the
// response union; errors are reserved for transfer-on-deleted-queue,
// missing static assets, cancelled contexts and invariant violations.
//
// Login, Get, Trace and Diagnose are accepted without a session; every
// other verb on a session-less connection answers NotLoggedIn.
func (s *Switch) Dispatch(ctx context.Context, connID string, req protocol.Request) (protocol.Response, error) {
	session, loggedIn := s.conns.SessionOf(connID)

	switch req.(type) {
	case protocol.Login, protocol.Get, protocol.Trace, protocol.Diagnose:
	default:
		if !loggedIn {
			return protocol.NotLoggedInResponse{}, nil
		}
	}

	switch r := req.(type) {
	case protocol.Login:
		s.conns.Add(connID, r.Session)
		s.stats.IncrementLogins()
		s.logger.Debug("login", slog.String("conn_id", connID), slog.String("session", r.Session))
		s.notify(events.SessionLogin{Session: r.Session, ConnID: connID})
		return protocol.LoginResponse{}, nil

	case protocol.CreatePersistent:
		_, created := s.dir.Add(r.Name)
		if created {
			s.logger.Debug("queue_created", slog.String("queue", r.Name))
			s.notify(events.QueueCreated{Name: r.Name})
		}
		return protocol.CreateResponse{Name: r.Name}, nil

	case protocol.CreateTransient:
		s.transient.Register(session, r.Name)
		_, created := s.dir.Add(r.Name)
		if created {
			s.logger.Debug("queue_created",
				slog.String("queue", r.Name),
				slog.String("session", session))
			s.notify(events.QueueCreated{Name: r.Name, Transient: true, Session: session})
		}
		return protocol.CreateResponse{Name: r.Name}, nil

	case protocol.Destroy:
		if s.dir.Remove(r.Name) {
			s.logger.Debug("queue_destroyed", slog.String("queue", r.Name))
			s.notify(events.QueueDestroyed{Name: r.Name})
		}
		return protocol.DestroyResponse{}, nil

	case protocol.Send:
		q, ok := s.dir.Find(r.Queue)
		if !ok {
			// Sending to an absent queue is not an error and creates nothing.
			return protocol.SendResponse{ID: nil}, nil
		}
		id := q.Enqueue(s.conns.Origin(connID), s.clock.Ns(), r.Message)
		s.stats.IncrementEnqueued()

		msg := r.Message
		s.traceEvent(protocol.TraceEvent{
			Time:  s.clock.WallSeconds(),
			Input: &session,
			Queue: r.Queue,
			Message: protocol.TraceMessage{
				Kind:    "message",
				ID:      id,
				Message: &msg,
			},
		})
		s.notify(events.MessageEnqueued{
			QueueName:   r.Queue,
			Index:       id.Index,
			Session:     session,
			PayloadSize: len(r.Message.Payload),
		})
		return protocol.SendResponse{ID: &id}, nil

	case protocol.Ack:
		s.traceEvent(protocol.TraceEvent{
			Time:  s.clock.WallSeconds(),
			Input: &session,
			Queue: r.ID.Queue,
			Message: protocol.TraceMessage{
				Kind: "ack",
				ID:   r.ID,
			},
		})
		// Acks to absent queues or ids are silently ignored.
		if q, ok := s.dir.Find(r.ID.Queue); ok {
			q.Ack(r.ID)
		}
		s.stats.IncrementAcked()
		s.notify(events.MessageAcked{QueueName: r.ID.Queue, Index: r.ID.Index, Session: session})
		return protocol.AckResponse{}, nil

	case protocol.Transfer:
		return s.transfer(ctx, session, r)

	case protocol.Trace:
		items, err := s.ring.Get(ctx, r.From, time.Duration(r.Timeout*float64(time.Second)))
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []protocol.TraceItem{}
		}
		return protocol.TraceResponse{Events: items}, nil

	case protocol.List:
		return protocol.ListResponse{Names: s.dir.List(r.Prefix)}, nil

	case protocol.Diagnose:
		return s.diagnostics(), nil

	case protocol.Get:
		body, err := s.readAsset(r.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrStaticNotFound, r.Path)
		}
		return protocol.GetResponse{Body: body}, nil
	}

	return nil, fmt.Errorf("unroutable request %T", req)
}

// diagnostics snapshots every queue, partitioned by membership in the union
// of the transient registry's sets.
func (s *Switch) diagnostics() protocol.DiagnosticsResponse {
	transientNames := s.transient.Union()
	d := protocol.Diagnostics{
		CurrentNs: s.clock.Ns(),
		Permanent: []protocol.QueueDiagnostics{},
		Transient: []protocol.QueueDiagnostics{},
	}

	for _, name := range s.dir.List("") {
		q, ok := s.dir.Find(name)
		if !ok {
			continue
		}
		qd := protocol.QueueDiagnostics{
			Name:    name,
			Entries: []protocol.DiagnosticEntry{},
		}
		if ns, ok := q.transferDeadline(); ok {
			qd.NextTransferExpectedNs = &ns
		}
		for _, it := range q.Contents() {
			qd.Entries = append(qd.Entries, protocol.DiagnosticEntry{ID: it.ID, Entry: it.Entry})
		}

		if _, isTransient := transientNames[name]; isTransient {
			d.Transient = append(d.Transient, qd)
		} else {
			d.Permanent = append(d.Permanent, qd)
		}
	}

	return protocol.DiagnosticsResponse{Diagnostics: d}
}
