// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants.
const (
	TypeSessionLogin     = "session.login"
	TypeSessionEnded     = "session.ended"
	TypeQueueCreated     = "queue.created"
	TypeQueueDestroyed   = "queue.destroyed"
	TypeMessageEnqueued  = "message.enqueued"
	TypeMessageDelivered = "message.delivered"
	TypeMessageAcked     = "message.acked"
)

// Event is the common interface for all webhook events.
type Event interface {
	// Type returns the event type identifier (e.g., "queue.created")
	Type() string

	// Queue returns the queue name for queue/message events, empty for others
	Queue() string

	// Wrap wraps the event in a common envelope with metadata
	Wrap(switchID string) *Envelope
}

// Envelope is the common wrapper for all webhook events.
type Envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	SwitchID  string `json:"switch_id"`
	Data      any    `json:"data"`
}

// MarshalJSON serializes the envelope to JSON.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(*e)
}

func wrap(e Event, switchID string) *Envelope {
	return &Envelope{
		EventType: e.Type(),
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SwitchID:  switchID,
		Data:      e,
	}
}

// SessionLogin is emitted when a connection attaches to a session.
type SessionLogin struct {
	Session string `json:"session"`
	ConnID  string `json:"conn_id"`
}

func (e SessionLogin) Type() string                   { return TypeSessionLogin }
func (e SessionLogin) Queue() string                  { return "" }
func (e SessionLogin) Wrap(switchID string) *Envelope { return wrap(e, switchID) }

// SessionEnded is emitted when a session's last connection closes.
type SessionEnded struct {
	Session         string   `json:"session"`
	ReclaimedQueues []string `json:"reclaimed_queues,omitempty"`
}

func (e SessionEnded) Type() string                   { return TypeSessionEnded }
func (e SessionEnded) Queue() string                  { return "" }
func (e SessionEnded) Wrap(switchID string) *Envelope { return wrap(e, switchID) }

// QueueCreated is emitted when a queue is created.
type QueueCreated struct {
	Name      string `json:"name"`
	Transient bool   `json:"transient"`
	Session   string `json:"session,omitempty"` // owning session, transient only
}

func (e QueueCreated) Type() string                   { return TypeQueueCreated }
func (e QueueCreated) Queue() string                  { return e.Name }
func (e QueueCreated) Wrap(switchID string) *Envelope { return wrap(e, switchID) }

// QueueDestroyed is emitted when a queue is removed, explicitly or by
// transient reclamation.
type QueueDestroyed struct {
	Name string `json:"name"`
}

func (e QueueDestroyed) Type() string                   { return TypeQueueDestroyed }
func (e QueueDestroyed) Queue() string                  { return e.Name }
func (e QueueDestroyed) Wrap(switchID string) *Envelope { return wrap(e, switchID) }

// MessageEnqueued is emitted when a message is appended to a queue.
type MessageEnqueued struct {
	QueueName   string `json:"queue"`
	Index       int64  `json:"index"`
	Session     string `json:"session,omitempty"`
	PayloadSize int    `json:"payload_size"`
}

func (e MessageEnqueued) Type() string                   { return TypeMessageEnqueued }
func (e MessageEnqueued) Queue() string                  { return e.QueueName }
func (e MessageEnqueued) Wrap(switchID string) *Envelope { return wrap(e, switchID) }

// MessageDelivered is emitted when a transfer returns a message to a
// consumer.
type MessageDelivered struct {
	QueueName string `json:"queue"`
	Index     int64  `json:"index"`
	Session   string `json:"session"` // consumer
}

func (e MessageDelivered) Type() string                   { return TypeMessageDelivered }
func (e MessageDelivered) Queue() string                  { return e.QueueName }
func (e MessageDelivered) Wrap(switchID string) *Envelope { return wrap(e, switchID) }

// MessageAcked is emitted when a consumer acknowledges a message.
type MessageAcked struct {
	QueueName string `json:"queue"`
	Index     int64  `json:"index"`
	Session   string `json:"session,omitempty"`
}

func (e MessageAcked) Type() string                   { return TypeMessageAcked }
func (e MessageAcked) Queue() string                  { return e.QueueName }
func (e MessageAcked) Wrap(switchID string) *Envelope { return wrap(e, switchID) }
