package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDTuple(t *testing.T) {
	id := MessageID{Queue: "svc", Index: 42}

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `["svc",42]`, string(data))

	var back MessageID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back)
}

func TestMessageIDRejectsWrongArity(t *testing.T) {
	var id MessageID
	assert.Error(t, json.Unmarshal([]byte(`["svc",1,2]`), &id))
	assert.Error(t, json.Unmarshal([]byte(`["svc"]`), &id))
}

func TestMessageRoundTrip(t *testing.T) {
	req := Message{Payload: []byte("ping"), Kind: KindRequest, ReplyTo: "a-reply"}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, req, back)

	resp := Message{Payload: []byte("pong"), Kind: KindResponse, Correlates: MessageID{Queue: "svc", Index: 1}}
	data, err = json.Marshal(resp)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, resp, back)
}

func TestMessageRejectsUnknownKind(t *testing.T) {
	var m Message
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"oneway"}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"response"}`), &m))
}

func TestParseRequestVerbs(t *testing.T) {
	req, err := ParseRequest("POST", "/login/worker", nil)
	require.NoError(t, err)
	assert.Equal(t, Login{Session: "worker"}, req)

	req, err = ParseRequest("POST", "/persistent/svc", nil)
	require.NoError(t, err)
	assert.Equal(t, CreatePersistent{Name: "svc"}, req)

	req, err = ParseRequest("POST", "/transient/a-reply", nil)
	require.NoError(t, err)
	assert.Equal(t, CreateTransient{Name: "a-reply"}, req)

	req, err = ParseRequest("POST", "/destroy/svc", nil)
	require.NoError(t, err)
	assert.Equal(t, Destroy{Name: "svc"}, req)

	req, err = ParseRequest("POST", "/ack/svc/7", nil)
	require.NoError(t, err)
	assert.Equal(t, Ack{ID: MessageID{Queue: "svc", Index: 7}}, req)

	req, err = ParseRequest("GET", "/list?prefix=a", nil)
	require.NoError(t, err)
	assert.Equal(t, List{Prefix: "a"}, req)

	req, err = ParseRequest("GET", "/diagnostics", nil)
	require.NoError(t, err)
	assert.Equal(t, Diagnose{}, req)

	req, err = ParseRequest("GET", "/index.html", nil)
	require.NoError(t, err)
	assert.Equal(t, Get{Path: "index.html"}, req)
}

func TestParseRequestTransfer(t *testing.T) {
	req, err := ParseRequest("POST", "/transfer", []byte(`{"from":"5","timeout":1.5,"queues":["x","y"]}`))
	require.NoError(t, err)

	tr, ok := req.(Transfer)
	require.True(t, ok)
	require.NotNil(t, tr.From)
	assert.Equal(t, int64(5), *tr.From)
	assert.Equal(t, 1.5, tr.Timeout)
	assert.Equal(t, []string{"x", "y"}, tr.Queues)

	req, err = ParseRequest("POST", "/transfer", []byte(`{"timeout":10,"queues":["svc"]}`))
	require.NoError(t, err)
	tr = req.(Transfer)
	assert.Nil(t, tr.From)
}

func TestParseRequestUnknown(t *testing.T) {
	_, err := ParseRequest("PUT", "/login/x", nil)
	assert.ErrorIs(t, err, ErrUnknownRequest)

	_, err = ParseRequest("POST", "/nosuchverb", nil)
	assert.ErrorIs(t, err, ErrUnknownRequest)

	_, err = ParseRequest("POST", "/ack/noindex", nil)
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestEncodeParseSymmetry(t *testing.T) {
	from := int64(3)
	reqs := []Request{
		Login{Session: "s"},
		CreatePersistent{Name: "svc"},
		CreateTransient{Name: "tmp"},
		Destroy{Name: "svc"},
		Send{Queue: "svc", Message: Message{Payload: []byte("hi"), Kind: KindRequest, ReplyTo: "r"}},
		Ack{ID: MessageID{Queue: "svc", Index: 9}},
		Transfer{From: &from, Timeout: 0.5, Queues: []string{"a", "b"}},
		Trace{From: -1, Timeout: 1},
		List{Prefix: "x"},
		Diagnose{},
	}

	for _, req := range reqs {
		method, path, body, err := EncodeRequest(req)
		require.NoError(t, err)

		back, err := ParseRequest(method, path, body)
		require.NoError(t, err, "%T", req)
		assert.Equal(t, req, back, "%T", req)
	}
}

func TestDecodeResponseNotLoggedIn(t *testing.T) {
	resp, err := DecodeResponse(Send{}, 403, []byte(`{"error":"not logged in"}`))
	require.NoError(t, err)
	assert.Equal(t, NotLoggedInResponse{}, resp)
}

func TestEncodeDecodeResponse(t *testing.T) {
	id := MessageID{Queue: "svc", Index: 1}
	resp := TransferResponse{
		Messages: []TransferItem{{ID: id, Message: Message{Payload: []byte("p"), Kind: KindRequest, ReplyTo: "r"}}},
		Next:     "1",
	}

	status, _, body, err := EncodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, 200, status)

	back, err := DecodeResponse(Transfer{}, status, body)
	require.NoError(t, err)
	assert.Equal(t, resp, back)
}
