// Package client is the message-switch client library. A Client pins a
// single TCP connection to the broker, because sessions are scoped to the
// transport connection: dropping the connection ends the session and
// reclaims its transient queues.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/djs55/message-switch/protocol"
)

// Client talks to one broker over one pinned connection.
type Client struct {
	base    string
	http    *http.Client
	session string
}

// Dial creates a client for the broker at addr (host:port). No connection
// is opened until the first request.
func Dial(addr string) *Client {
	return &Client{
		base: "http://" + addr,
		http: &http.Client{
			Transport: &http.Transport{
				MaxConnsPerHost:     1,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     0,
			},
		},
	}
}

// Close drops the pinned connection, ending the session and releasing its
// transient queues.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Session returns the name passed to Login, if any.
func (c *Client) Session() string {
	return c.session
}

func (c *Client) do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	method, path, body, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	out, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	resp, err := protocol.DecodeResponse(req, httpResp.StatusCode, out)
	if err != nil {
		return nil, err
	}
	if _, ok := resp.(protocol.NotLoggedInResponse); ok {
		return nil, fmt.Errorf("not logged in")
	}
	return resp, nil
}

// Login attaches this client's connection to a session.
func (c *Client) Login(ctx context.Context, session string) error {
	if _, err := c.do(ctx, protocol.Login{Session: session}); err != nil {
		return err
	}
	c.session = session
	return nil
}

// CreatePersistent creates a queue that outlives this session.
func (c *Client) CreatePersistent(ctx context.Context, name string) error {
	_, err := c.do(ctx, protocol.CreatePersistent{Name: name})
	return err
}

// CreateTransient creates a queue destroyed when this session ends.
func (c *Client) CreateTransient(ctx context.Context, name string) error {
	_, err := c.do(ctx, protocol.CreateTransient{Name: name})
	return err
}

// Destroy removes a queue.
func (c *Client) Destroy(ctx context.Context, name string) error {
	_, err := c.do(ctx, protocol.Destroy{Name: name})
	return err
}

// Send enqueues a message. A nil id means the queue does not exist.
func (c *Client) Send(ctx context.Context, queue string, msg protocol.Message) (*protocol.MessageID, error) {
	resp, err := c.do(ctx, protocol.Send{Queue: queue, Message: msg})
	if err != nil {
		return nil, err
	}
	return resp.(protocol.SendResponse).ID, nil
}

// Ack removes a delivered message from its queue.
func (c *Client) Ack(ctx context.Context, id protocol.MessageID) error {
	_, err := c.do(ctx, protocol.Ack{ID: id})
	return err
}

// Transfer long-polls the given queues for messages after the cursor.
func (c *Client) Transfer(ctx context.Context, from *int64, timeout float64, queues []string) (protocol.TransferResponse, error) {
	resp, err := c.do(ctx, protocol.Transfer{From: from, Timeout: timeout, Queues: queues})
	if err != nil {
		return protocol.TransferResponse{}, err
	}
	return resp.(protocol.TransferResponse), nil
}

// Trace reads trace events after the cursor, blocking up to timeout
// seconds for new ones.
func (c *Client) Trace(ctx context.Context, from int64, timeout float64) ([]protocol.TraceItem, error) {
	resp, err := c.do(ctx, protocol.Trace{From: from, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return resp.(protocol.TraceResponse).Events, nil
}

// List returns queue names with the given prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	resp, err := c.do(ctx, protocol.List{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	return resp.(protocol.ListResponse).Names, nil
}

// Diagnostics returns the broker state snapshot.
func (c *Client) Diagnostics(ctx context.Context) (protocol.Diagnostics, error) {
	resp, err := c.do(ctx, protocol.Diagnose{})
	if err != nil {
		return protocol.Diagnostics{}, err
	}
	return resp.(protocol.DiagnosticsResponse).Diagnostics, nil
}

// Call performs one RPC: enqueue a request on the service queue and wait
// for the correlated response on a private transient reply queue.
func (c *Client) Call(ctx context.Context, queue string, payload []byte, timeout float64) ([]byte, error) {
	if c.session == "" {
		return nil, fmt.Errorf("call requires a session; login first")
	}

	replyQueue := "reply." + c.session + "." + uuid.New().String()
	if err := c.CreateTransient(ctx, replyQueue); err != nil {
		return nil, err
	}
	defer c.Destroy(context.WithoutCancel(ctx), replyQueue)

	id, err := c.Send(ctx, queue, protocol.Message{
		Payload: payload,
		Kind:    protocol.KindRequest,
		ReplyTo: replyQueue,
	})
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("queue %q does not exist", queue)
	}

	deadline := time.Now().Add(time.Duration(timeout * float64(time.Second)))
	var from *int64
	for {
		remaining := time.Until(deadline).Seconds()
		if remaining <= 0 {
			return nil, fmt.Errorf("call on %q timed out", queue)
		}

		batch, err := c.Transfer(ctx, from, remaining, []string{replyQueue})
		if err != nil {
			return nil, err
		}
		for _, m := range batch.Messages {
			if err := c.Ack(ctx, m.ID); err != nil {
				return nil, err
			}
			if m.Message.Kind == protocol.KindResponse && m.Message.Correlates == *id {
				return m.Message.Payload, nil
			}
		}
		next, err := strconv.ParseInt(batch.Next, 10, 64)
		if err == nil {
			from = &next
		}
	}
}

// Handler processes one request payload and produces the response payload.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Serve creates the service queue and answers requests on it until the
// context is cancelled. Each request is acked after the handler runs, then
// the correlated response is enqueued on the request's reply queue.
func (c *Client) Serve(ctx context.Context, queue string, handler Handler) error {
	if c.session == "" {
		return fmt.Errorf("serve requires a session; login first")
	}
	if err := c.CreatePersistent(ctx, queue); err != nil {
		return err
	}

	var from *int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := c.Transfer(ctx, from, 30, []string{queue})
		if err != nil {
			return err
		}
		for _, m := range batch.Messages {
			if m.Message.Kind != protocol.KindRequest {
				// a stray response on the service queue; drop it
				if err := c.Ack(ctx, m.ID); err != nil {
					return err
				}
				continue
			}

			out, err := handler(ctx, m.Message.Payload)
			if err != nil {
				return fmt.Errorf("handler failed for %s: %w", m.ID, err)
			}
			if err := c.Ack(ctx, m.ID); err != nil {
				return err
			}
			if _, err := c.Send(ctx, m.Message.ReplyTo, protocol.Message{
				Payload:    out,
				Kind:       protocol.KindResponse,
				Correlates: m.ID,
			}); err != nil {
				return err
			}
		}
		next, err := strconv.ParseInt(batch.Next, 10, 64)
		if err == nil {
			from = &next
		}
	}
}

// FollowTrace streams trace events from the broker's WebSocket endpoint at
// url (ws://host:port/ws/trace), starting after the given cursor, invoking
// fn for each. Returns when the context is cancelled, fn errors or the
// stream closes.
func FollowTrace(ctx context.Context, url string, from int64, fn func(protocol.TraceItem) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s?from=%d", url, from), nil)
	if err != nil {
		return fmt.Errorf("failed to connect trace stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var item protocol.TraceItem
		if err := conn.ReadJSON(&item); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}
