package broker

import (
	"github.com/djs55/message-switch/protocol"
	"github.com/djs55/message-switch/relation"
)

// Connections tracks which transport connections belong to which sessions.
// A connection maps to at most one session; re-login replaces the prior
// mapping. A session is active while at least one connection is attached.
type Connections struct {
	rel *relation.Relation[string, string] // conn id -> session
}

// NewConnections creates an empty connection table.
func NewConnections() *Connections {
	return &Connections{rel: relation.New[string, string]()}
}

// Add attaches a connection to a session, replacing any prior session the
// connection was attached to.
func (c *Connections) Add(conn, session string) {
	c.rel.RemoveA(conn)
	c.rel.Add(conn, session)
}

// SessionOf returns the session a connection is attached to.
func (c *Connections) SessionOf(conn string) (string, bool) {
	sessions := c.rel.LookupA(conn)
	if len(sessions) == 0 {
		return "", false
	}
	return sessions[0], true
}

// ConnsOf returns the connections attached to a session.
func (c *Connections) ConnsOf(session string) []string {
	return c.rel.LookupB(session)
}

// IsActive reports whether the session has any connection attached.
func (c *Connections) IsActive(session string) bool {
	return c.rel.ContainsB(session)
}

// RemoveConn detaches a connection. Returns the session it was attached to
// and whether that session just became inactive.
func (c *Connections) RemoveConn(conn string) (session string, nowInactive bool) {
	session, ok := c.SessionOf(conn)
	if !ok {
		return "", false
	}
	c.rel.RemoveA(conn)
	return session, !c.rel.ContainsB(session)
}

// Origin resolves a connection to the origin stamped on its entries: the
// session name when logged in, the raw connection id otherwise.
func (c *Connections) Origin(conn string) protocol.Origin {
	if session, ok := c.SessionOf(conn); ok {
		return protocol.Named(session)
	}
	return protocol.Anonymous(conn)
}
