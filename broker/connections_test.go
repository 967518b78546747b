package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djs55/message-switch/protocol"
)

func TestSessionAttachment(t *testing.T) {
	c := NewConnections()

	_, ok := c.SessionOf("conn1")
	assert.False(t, ok)

	c.Add("conn1", "alice")
	session, ok := c.SessionOf("conn1")
	require.True(t, ok)
	assert.Equal(t, "alice", session)
	assert.True(t, c.IsActive("alice"))
}

func TestReLoginReplacesMapping(t *testing.T) {
	c := NewConnections()

	c.Add("conn1", "alice")
	c.Add("conn1", "bob")

	session, ok := c.SessionOf("conn1")
	require.True(t, ok)
	assert.Equal(t, "bob", session)
	assert.False(t, c.IsActive("alice"))
}

func TestSessionSpansConnections(t *testing.T) {
	c := NewConnections()

	c.Add("conn1", "alice")
	c.Add("conn2", "alice")
	assert.ElementsMatch(t, []string{"conn1", "conn2"}, c.ConnsOf("alice"))

	session, nowInactive := c.RemoveConn("conn1")
	assert.Equal(t, "alice", session)
	assert.False(t, nowInactive)

	session, nowInactive = c.RemoveConn("conn2")
	assert.Equal(t, "alice", session)
	assert.True(t, nowInactive)
	assert.False(t, c.IsActive("alice"))
}

func TestRemoveUnknownConn(t *testing.T) {
	c := NewConnections()

	session, nowInactive := c.RemoveConn("nope")
	assert.Empty(t, session)
	assert.False(t, nowInactive)
}

func TestOrigin(t *testing.T) {
	c := NewConnections()

	assert.Equal(t, protocol.Anonymous("conn1"), c.Origin("conn1"))

	c.Add("conn1", "alice")
	assert.Equal(t, protocol.Named("alice"), c.Origin("conn1"))
}

func TestTransientReclaim(t *testing.T) {
	d := NewDirectory()
	tr := NewTransient()

	d.Add("t1")
	d.Add("t2")
	d.Add("keep")
	tr.Register("alice", "t1")
	tr.Register("alice", "t2")
	tr.Register("alice", "gone-already")

	union := tr.Union()
	assert.Contains(t, union, "t1")
	assert.Contains(t, union, "t2")

	removed := tr.Reclaim("alice", d)
	assert.ElementsMatch(t, []string{"t1", "t2"}, removed)
	assert.Equal(t, []string{"keep"}, d.List(""))
	assert.Empty(t, tr.Union())

	// reclaiming an unknown session is a no-op
	assert.Empty(t, tr.Reclaim("alice", d))
}
