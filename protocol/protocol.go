// Package protocol defines the message-switch data model and the closed
// request/response unions carried between the transport facade and the
// broker core. The wire forms are JSON; a MessageID is encoded as the
// 2-tuple [queue, index].
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageID names an enqueued message for the lifetime of a broker run:
// the queue it was enqueued on and its per-queue monotonic index.
type MessageID struct {
	Queue string
	Index int64
}

func (id MessageID) String() string {
	return fmt.Sprintf("%s.%d", id.Queue, id.Index)
}

// MarshalJSON encodes the id as the 2-tuple [queue, index].
func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{id.Queue, id.Index})
}

// UnmarshalJSON decodes the 2-tuple form.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("message id: expected 2-tuple, got %d elements", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &id.Queue); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &id.Index)
}

// Kind distinguishes the two message kinds a payload can be wrapped in.
type Kind int

const (
	// KindRequest marks a message expecting a reply on ReplyTo.
	KindRequest Kind = iota
	// KindResponse marks a message answering the request named by Correlates.
	KindResponse
)

// Message is the unit the switch carries. The payload is opaque; the broker
// never interprets it.
type Message struct {
	Payload []byte
	Kind    Kind
	// ReplyTo is the queue a reply should be enqueued on. Request only.
	ReplyTo string
	// Correlates is the id of the request this message answers. Response only.
	Correlates MessageID
}

type messageWire struct {
	Payload    []byte     `json:"payload"`
	Kind       string     `json:"kind"`
	ReplyTo    string     `json:"reply_to,omitempty"`
	Correlates *MessageID `json:"correlates,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{Payload: m.Payload}
	switch m.Kind {
	case KindRequest:
		w.Kind = "request"
		w.ReplyTo = m.ReplyTo
	case KindResponse:
		w.Kind = "response"
		id := m.Correlates
		w.Correlates = &id
	default:
		return nil, fmt.Errorf("message: unknown kind %d", m.Kind)
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Payload = w.Payload
	switch w.Kind {
	case "request":
		m.Kind = KindRequest
		m.ReplyTo = w.ReplyTo
		m.Correlates = MessageID{}
	case "response":
		m.Kind = KindResponse
		if w.Correlates == nil {
			return fmt.Errorf("message: response without correlates")
		}
		m.ReplyTo = ""
		m.Correlates = *w.Correlates
	default:
		return fmt.Errorf("message: unknown kind %q", w.Kind)
	}
	return nil
}

// Origin records who enqueued an entry: a logged-in session by name, or a
// raw connection id for sessionless producers.
type Origin struct {
	Kind    string `json:"kind"` // "named" or "anonymous"
	Session string `json:"session,omitempty"`
	Conn    string `json:"conn,omitempty"`
}

// Named returns the origin of a logged-in session.
func Named(session string) Origin {
	return Origin{Kind: "named", Session: session}
}

// Anonymous returns the origin of a sessionless connection.
func Anonymous(conn string) Origin {
	return Origin{Kind: "anonymous", Conn: conn}
}

// Entry is a queued message together with its provenance. Immutable after
// insertion.
type Entry struct {
	Origin     Origin  `json:"origin"`
	EnqueuedNs int64   `json:"enqueued_ns"`
	Message    Message `json:"message"`
}

// TraceMessage is the payload of a trace event: either a carried message or
// an acknowledgement of one.
type TraceMessage struct {
	Kind    string    `json:"kind"` // "message" or "ack"
	ID      MessageID `json:"id"`
	Message *Message  `json:"message,omitempty"` // nil for acks
}

// TraceEvent records one enqueue, dequeue or ack for diagnostics.
type TraceEvent struct {
	Time    float64      `json:"time"` // wall-clock seconds
	Input   *string      `json:"input,omitempty"`
	Output  *string      `json:"output,omitempty"`
	Queue   string       `json:"queue"`
	Message TraceMessage `json:"message"`
	// ProcessingNs is set when a response is dequeued and the correlated
	// request entry is still findable.
	ProcessingNs *int64 `json:"processing_ns,omitempty"`
}

// TraceItem is a trace event together with its ring cursor.
type TraceItem struct {
	Cursor int64      `json:"cursor"`
	Event  TraceEvent `json:"event"`
}

// DiagnosticEntry pairs a queued entry with its id for the diagnostics
// snapshot.
type DiagnosticEntry struct {
	ID    MessageID `json:"id"`
	Entry Entry     `json:"entry"`
}

// QueueDiagnostics describes one queue in the diagnostics snapshot.
type QueueDiagnostics struct {
	Name                   string            `json:"name"`
	NextTransferExpectedNs *int64            `json:"next_transfer_expected_ns,omitempty"`
	Entries                []DiagnosticEntry `json:"entries"`
}

// Diagnostics is the broker state snapshot, partitioned into queues bound to
// a session's lifetime and permanent ones.
type Diagnostics struct {
	CurrentNs int64              `json:"current_ns"`
	Permanent []QueueDiagnostics `json:"permanent"`
	Transient []QueueDiagnostics `json:"transient"`
}

// Request is the closed union of the verbs a client can issue.
type Request interface{ isRequest() }

// Login attaches the issuing connection to a session.
type Login struct {
	Session string `json:"session"`
}

// CreatePersistent creates a queue that outlives any session.
type CreatePersistent struct {
	Name string `json:"name"`
}

// CreateTransient creates a queue destroyed when the issuing session ends.
type CreateTransient struct {
	Name string `json:"name"`
}

// Destroy removes a queue and wakes its waiters.
type Destroy struct {
	Name string `json:"name"`
}

// Send enqueues a message on a queue.
type Send struct {
	Queue   string  `json:"queue"`
	Message Message `json:"message"`
}

// Ack removes a delivered message from its queue.
type Ack struct {
	ID MessageID `json:"id"`
}

// Transfer long-polls a set of queues for messages after a cursor.
type Transfer struct {
	From    *int64   `json:"-"`
	Timeout float64  `json:"timeout"`
	Queues  []string `json:"queues"`
}

// Trace reads trace events after a cursor, blocking up to Timeout seconds.
type Trace struct {
	From    int64   `json:"from"`
	Timeout float64 `json:"timeout"`
}

// List returns the queue names with a given prefix.
type List struct {
	Prefix string `json:"prefix"`
}

// Diagnose requests the diagnostics snapshot.
type Diagnose struct{}

// Get reads a static asset.
type Get struct {
	Path string `json:"path"`
}

func (Login) isRequest()            {}
func (CreatePersistent) isRequest() {}
func (CreateTransient) isRequest()  {}
func (Destroy) isRequest()          {}
func (Send) isRequest()             {}
func (Ack) isRequest()              {}
func (Transfer) isRequest()         {}
func (Trace) isRequest()            {}
func (List) isRequest()             {}
func (Diagnose) isRequest()         {}
func (Get) isRequest()              {}

// Response is the closed union of broker replies.
type Response interface{ isResponse() }

// LoginResponse acknowledges a Login.
type LoginResponse struct{}

// CreateResponse acknowledges queue creation, echoing the name.
type CreateResponse struct {
	Name string `json:"name"`
}

// DestroyResponse acknowledges a Destroy.
type DestroyResponse struct{}

// SendResponse carries the id assigned to the enqueued message, or nil if
// the queue does not exist.
type SendResponse struct {
	ID *MessageID `json:"id"`
}

// AckResponse acknowledges an Ack.
type AckResponse struct{}

// TransferItem is one delivered message.
type TransferItem struct {
	ID      MessageID `json:"id"`
	Message Message   `json:"message"`
}

// TransferResponse carries the delivered batch and the cursor to resume
// from.
type TransferResponse struct {
	Messages []TransferItem `json:"messages"`
	Next     string         `json:"next"`
}

// TraceResponse carries trace events with their cursors.
type TraceResponse struct {
	Events []TraceItem `json:"events"`
}

// ListResponse carries the sorted matching queue names.
type ListResponse struct {
	Names []string `json:"names"`
}

// DiagnosticsResponse carries the state snapshot.
type DiagnosticsResponse struct {
	Diagnostics Diagnostics `json:"diagnostics"`
}

// GetResponse carries a static asset body verbatim.
type GetResponse struct {
	Body []byte
}

// NotLoggedInResponse rejects a verb that requires a session.
type NotLoggedInResponse struct{}

func (LoginResponse) isResponse()       {}
func (CreateResponse) isResponse()      {}
func (DestroyResponse) isResponse()     {}
func (SendResponse) isResponse()        {}
func (AckResponse) isResponse()         {}
func (TransferResponse) isResponse()    {}
func (TraceResponse) isResponse()       {}
func (ListResponse) isResponse()        {}
func (DiagnosticsResponse) isResponse() {}
func (GetResponse) isResponse()         {}
func (NotLoggedInResponse) isResponse() {}
