package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djs55/message-switch/protocol"
)

func event(queue string, index int64) protocol.TraceEvent {
	return protocol.TraceEvent{
		Time:  1.0,
		Queue: queue,
		Message: protocol.TraceMessage{
			Kind: "message",
			ID:   protocol.MessageID{Queue: queue, Index: index},
		},
	}
}

func TestCursorsMonotonic(t *testing.T) {
	r := NewRing(8)

	var last int64 = -1
	for i := 0; i < 5; i++ {
		c := r.Append(event("q", int64(i+1)))
		assert.Greater(t, c, last)
		last = c
	}

	items := r.After(-1)
	require.Len(t, items, 5)
	for i := 1; i < len(items); i++ {
		assert.Greater(t, items[i].Cursor, items[i-1].Cursor)
	}
}

func TestEvictionKeepsCursors(t *testing.T) {
	r := NewRing(3)

	for i := 0; i < 10; i++ {
		r.Append(event("q", int64(i+1)))
	}

	items := r.After(-1)
	require.Len(t, items, 3)
	// oldest were evicted; cursors are not renumbered
	assert.Equal(t, int64(7), items[0].Cursor)
	assert.Equal(t, int64(9), items[2].Cursor)
}

func TestAfterCursor(t *testing.T) {
	r := NewRing(8)
	r.Append(event("q", 1))
	c := r.Append(event("q", 2))
	r.Append(event("q", 3))

	items := r.After(c)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].Event.Message.ID.Index)

	assert.Empty(t, r.After(c+1))
}

func TestGetTimesOutEmpty(t *testing.T) {
	r := NewRing(8)

	start := time.Now()
	items, err := r.Get(context.Background(), -1, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestGetWakesOnAppend(t *testing.T) {
	r := NewRing(8)

	done := make(chan []protocol.TraceItem, 1)
	go func() {
		items, err := r.Get(context.Background(), -1, 5*time.Second)
		require.NoError(t, err)
		done <- items
	}()

	time.Sleep(20 * time.Millisecond)
	r.Append(event("q", 1))

	select {
	case items := <-done:
		require.Len(t, items, 1)
	case <-time.After(time.Second):
		t.Fatal("blocked get not woken by append")
	}
}

func TestGetCancelled(t *testing.T) {
	r := NewRing(8)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Get(ctx, -1, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMscgen(t *testing.T) {
	a, b := "a", "b"
	items := []protocol.TraceItem{
		{Cursor: 0, Event: protocol.TraceEvent{
			Input: &a, Queue: "svc",
			Message: protocol.TraceMessage{
				Kind:    "message",
				ID:      protocol.MessageID{Queue: "svc", Index: 1},
				Message: &protocol.Message{Payload: []byte("ping"), Kind: protocol.KindRequest, ReplyTo: "a-reply"},
			},
		}},
		{Cursor: 1, Event: protocol.TraceEvent{
			Output: &b, Queue: "svc",
			Message: protocol.TraceMessage{
				Kind: "ack",
				ID:   protocol.MessageID{Queue: "svc", Index: 1},
			},
		}},
	}

	out := Mscgen(items)
	assert.Contains(t, out, "msc {")
	assert.Contains(t, out, `"a"`)
	assert.Contains(t, out, `"b"`)
	assert.Contains(t, out, "ack")
	assert.Contains(t, out, "ping")
}
