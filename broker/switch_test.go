package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djs55/message-switch/protocol"
)

// TestRequestResponseRoundTrip walks the full RPC pattern: a client sends a
// request to a service queue, the server transfers it, acks it and enqueues
// a correlated response on the reply queue.
func TestRequestResponseRoundTrip(t *testing.T) {
	s := newTestSwitch(t)
	ctx := context.Background()

	// client A
	login(t, s, "connA", "a")
	_, err := s.Dispatch(ctx, "connA", protocol.CreateTransient{Name: "a-reply"})
	require.NoError(t, err)

	// server B
	login(t, s, "connB", "b")
	_, err = s.Dispatch(ctx, "connB", protocol.CreatePersistent{Name: "svc"})
	require.NoError(t, err)

	serverGot := make(chan protocol.TransferResponse, 1)
	go func() {
		serverGot <- transfer(t, s, "connB", protocol.Transfer{Timeout: 10, Queues: []string{"svc"}})
	}()
	time.Sleep(20 * time.Millisecond)

	// A sends the request
	resp, err := s.Dispatch(ctx, "connA", protocol.Send{
		Queue:   "svc",
		Message: protocol.Message{Payload: []byte("ping"), Kind: protocol.KindRequest, ReplyTo: "a-reply"},
	})
	require.NoError(t, err)
	reqID := resp.(protocol.SendResponse).ID
	require.NotNil(t, reqID)
	assert.Equal(t, protocol.MessageID{Queue: "svc", Index: 1}, *reqID)

	// B receives it
	var delivered protocol.TransferResponse
	select {
	case delivered = <-serverGot:
	case <-time.After(2 * time.Second):
		t.Fatal("server transfer did not return")
	}
	require.Len(t, delivered.Messages, 1)
	got := delivered.Messages[0]
	assert.Equal(t, *reqID, got.ID)
	assert.Equal(t, "ping", string(got.Message.Payload))
	assert.Equal(t, protocol.KindRequest, got.Message.Kind)
	assert.Equal(t, "a-reply", got.Message.ReplyTo)
	assert.Equal(t, "1", delivered.Next)

	// B acks and replies
	_, err = s.Dispatch(ctx, "connB", protocol.Ack{ID: got.ID})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, "connB", protocol.Send{
		Queue:   got.Message.ReplyTo,
		Message: protocol.Message{Payload: []byte("pong"), Kind: protocol.KindResponse, Correlates: got.ID},
	})
	require.NoError(t, err)

	// A picks up the response
	reply := transfer(t, s, "connA", protocol.Transfer{Timeout: 10, Queues: []string{"a-reply"}})
	require.Len(t, reply.Messages, 1)
	assert.Equal(t, "pong", string(reply.Messages[0].Message.Payload))
	assert.Equal(t, *reqID, reply.Messages[0].Message.Correlates)

	// the trace recorded the response delivery; the request was acked, so
	// no processing time could be attached to it
	items := s.Trace().After(-1)
	require.NotEmpty(t, items)
	last := items[len(items)-1].Event
	require.NotNil(t, last.Output)
	assert.Equal(t, "a", *last.Output)
	assert.Equal(t, "a-reply", last.Queue)
}

// TestProcessingTimeMeasured checks the latency attribution when the
// request entry is still present at response-delivery time.
func TestProcessingTimeMeasured(t *testing.T) {
	s := newTestSwitch(t)
	ctx := context.Background()
	login(t, s, "connA", "a")
	login(t, s, "connB", "b")
	_, err := s.Dispatch(ctx, "connA", protocol.CreatePersistent{Name: "svc"})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, "connA", protocol.CreatePersistent{Name: "reply"})
	require.NoError(t, err)

	resp, err := s.Dispatch(ctx, "connA", protocol.Send{
		Queue:   "svc",
		Message: protocol.Message{Payload: []byte("ping"), Kind: protocol.KindRequest, ReplyTo: "reply"},
	})
	require.NoError(t, err)
	reqID := *resp.(protocol.SendResponse).ID

	time.Sleep(50 * time.Millisecond)

	// respond without acking the request first
	_, err = s.Dispatch(ctx, "connB", protocol.Send{
		Queue:   "reply",
		Message: protocol.Message{Payload: []byte("pong"), Kind: protocol.KindResponse, Correlates: reqID},
	})
	require.NoError(t, err)

	transfer(t, s, "connB", protocol.Transfer{Timeout: 0, Queues: []string{"reply"}})

	items := s.Trace().After(-1)
	require.NotEmpty(t, items)
	last := items[len(items)-1].Event
	require.NotNil(t, last.ProcessingNs)
	assert.GreaterOrEqual(t, *last.ProcessingNs, int64(50*time.Millisecond))
	assert.Less(t, *last.ProcessingNs, int64(5*time.Second))
}

// TestTransientReclamation drops a session's only connection and checks its
// transient queues disappear while persistent ones survive.
func TestTransientReclamation(t *testing.T) {
	s := newTestSwitch(t)
	ctx := context.Background()

	s.Connect("conn1")
	login(t, s, "conn1", "t")
	_, err := s.Dispatch(ctx, "conn1", protocol.CreateTransient{Name: "q1"})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, "conn1", protocol.CreatePersistent{Name: "keep"})
	require.NoError(t, err)

	s.Disconnect("conn1")

	assert.Equal(t, []string{"keep"}, s.Directory().List(""))
}

// TestReclamationWaitsForLastConnection keeps the session alive through a
// second connection.
func TestReclamationWaitsForLastConnection(t *testing.T) {
	s := newTestSwitch(t)
	ctx := context.Background()

	s.Connect("conn1")
	s.Connect("conn2")
	login(t, s, "conn1", "t")
	login(t, s, "conn2", "t")
	_, err := s.Dispatch(ctx, "conn1", protocol.CreateTransient{Name: "q1"})
	require.NoError(t, err)

	s.Disconnect("conn1")
	assert.Contains(t, s.Directory().List(""), "q1")

	s.Disconnect("conn2")
	assert.NotContains(t, s.Directory().List(""), "q1")
}

// TestReclamationWakesWaiters: destroying a transient queue on disconnect
// behaves like an explicit destroy for anyone blocked on it.
func TestReclamationWakesWaiters(t *testing.T) {
	s := newTestSwitch(t)
	ctx := context.Background()

	s.Connect("conn1")
	login(t, s, "conn1", "t")
	login(t, s, "conn2", "watcher")
	_, err := s.Dispatch(ctx, "conn1", protocol.CreateTransient{Name: "q1"})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Dispatch(ctx, "conn2", protocol.Transfer{Timeout: 10, Queues: []string{"q1"}})
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)

	s.Disconnect("conn1")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrQueueDeleted)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by reclamation")
	}
}

func TestStatsTrackDispatch(t *testing.T) {
	s := newTestSwitch(t)
	ctx := context.Background()

	s.Connect("conn1")
	login(t, s, "conn1", "a")
	_, err := s.Dispatch(ctx, "conn1", protocol.CreatePersistent{Name: "svc"})
	require.NoError(t, err)
	send(t, s, "conn1", "svc", "one")
	transfer(t, s, "conn1", protocol.Transfer{Timeout: 0, Queues: []string{"svc"}})

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.GetTotalConnections())
	assert.Equal(t, uint64(1), stats.GetLogins())
	assert.Equal(t, uint64(1), stats.GetMessagesEnqueued())
	assert.Equal(t, uint64(1), stats.GetMessagesDelivered())
	assert.Equal(t, uint64(1), stats.GetTransfers())
}
