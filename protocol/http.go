package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnknownRequest marks a method/path pair that maps to no verb. The
// transport answers it with 404 before the core is invoked.
var ErrUnknownRequest = errors.New("unknown request")

// Verbs are framed as an HTTP method plus path prefix, with JSON bodies for
// compound payloads:
//
//	POST /login/{session}
//	POST /persistent/{name}
//	POST /transient/{name}
//	POST /destroy/{name}
//	POST /send/{queue}          body: Message
//	POST /ack/{queue}/{index}
//	POST /transfer              body: {from, timeout, queues}
//	GET  /trace?from=&timeout=
//	GET  /list?prefix=
//	GET  /diagnostics
//	GET  /{path}                static asset
type transferWire struct {
	From    string   `json:"from,omitempty"`
	Timeout float64  `json:"timeout"`
	Queues  []string `json:"queues"`
}

// ParseRequest maps an HTTP method, request path and body to a Request.
func ParseRequest(method, path string, body []byte) (Request, error) {
	path = strings.TrimPrefix(path, "/")

	switch method {
	case "POST":
		switch {
		case strings.HasPrefix(path, "login/"):
			return Login{Session: strings.TrimPrefix(path, "login/")}, nil
		case strings.HasPrefix(path, "persistent/"):
			return CreatePersistent{Name: strings.TrimPrefix(path, "persistent/")}, nil
		case strings.HasPrefix(path, "transient/"):
			return CreateTransient{Name: strings.TrimPrefix(path, "transient/")}, nil
		case strings.HasPrefix(path, "destroy/"):
			return Destroy{Name: strings.TrimPrefix(path, "destroy/")}, nil
		case strings.HasPrefix(path, "send/"):
			var m Message
			if err := json.Unmarshal(body, &m); err != nil {
				return nil, fmt.Errorf("%w: send body: %v", ErrUnknownRequest, err)
			}
			return Send{Queue: strings.TrimPrefix(path, "send/"), Message: m}, nil
		case strings.HasPrefix(path, "ack/"):
			rest := strings.TrimPrefix(path, "ack/")
			slash := strings.LastIndex(rest, "/")
			if slash < 0 {
				return nil, fmt.Errorf("%w: ack needs queue and index", ErrUnknownRequest)
			}
			index, err := strconv.ParseInt(rest[slash+1:], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: ack index: %v", ErrUnknownRequest, err)
			}
			return Ack{ID: MessageID{Queue: rest[:slash], Index: index}}, nil
		case path == "transfer":
			var w transferWire
			if err := json.Unmarshal(body, &w); err != nil {
				return nil, fmt.Errorf("%w: transfer body: %v", ErrUnknownRequest, err)
			}
			req := Transfer{Timeout: w.Timeout, Queues: w.Queues}
			if w.From != "" {
				from, err := strconv.ParseInt(w.From, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: transfer cursor: %v", ErrUnknownRequest, err)
				}
				req.From = &from
			}
			return req, nil
		}
	case "GET":
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownRequest, err)
		}
		q := u.Query()
		switch {
		case u.Path == "trace":
			req := Trace{From: -1}
			if v := q.Get("from"); v != "" {
				from, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: trace cursor: %v", ErrUnknownRequest, err)
				}
				req.From = from
			}
			if v := q.Get("timeout"); v != "" {
				timeout, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: trace timeout: %v", ErrUnknownRequest, err)
				}
				req.Timeout = timeout
			}
			return req, nil
		case u.Path == "list":
			return List{Prefix: q.Get("prefix")}, nil
		case u.Path == "diagnostics":
			return Diagnose{}, nil
		default:
			return Get{Path: u.Path}, nil
		}
	}
	return nil, ErrUnknownRequest
}

// EncodeRequest maps a Request to its HTTP frame. The inverse of
// ParseRequest, used by the client.
func EncodeRequest(req Request) (method, path string, body []byte, err error) {
	switch r := req.(type) {
	case Login:
		return "POST", "/login/" + r.Session, nil, nil
	case CreatePersistent:
		return "POST", "/persistent/" + r.Name, nil, nil
	case CreateTransient:
		return "POST", "/transient/" + r.Name, nil, nil
	case Destroy:
		return "POST", "/destroy/" + r.Name, nil, nil
	case Send:
		body, err = json.Marshal(r.Message)
		return "POST", "/send/" + r.Queue, body, err
	case Ack:
		return "POST", fmt.Sprintf("/ack/%s/%d", r.ID.Queue, r.ID.Index), nil, nil
	case Transfer:
		w := transferWire{Timeout: r.Timeout, Queues: r.Queues}
		if r.From != nil {
			w.From = strconv.FormatInt(*r.From, 10)
		}
		body, err = json.Marshal(w)
		return "POST", "/transfer", body, err
	case Trace:
		v := url.Values{}
		v.Set("from", strconv.FormatInt(r.From, 10))
		v.Set("timeout", strconv.FormatFloat(r.Timeout, 'f', -1, 64))
		return "GET", "/trace?" + v.Encode(), nil, nil
	case List:
		v := url.Values{}
		v.Set("prefix", r.Prefix)
		return "GET", "/list?" + v.Encode(), nil, nil
	case Diagnose:
		return "GET", "/diagnostics", nil, nil
	case Get:
		return "GET", "/" + r.Path, nil, nil
	}
	return "", "", nil, fmt.Errorf("unencodable request %T", req)
}

// EncodeResponse maps a Response to an HTTP status and JSON body. Static
// asset bodies pass through verbatim with an empty content type; the facade
// sniffs it.
func EncodeResponse(resp Response) (status int, contentType string, body []byte, err error) {
	switch r := resp.(type) {
	case NotLoggedInResponse:
		return 403, "application/json", []byte(`{"error":"not logged in"}`), nil
	case GetResponse:
		return 200, "", r.Body, nil
	default:
		body, err = json.Marshal(resp)
		return 200, "application/json", body, err
	}
}

// DecodeResponse maps an HTTP status and body back to the Response for the
// request that produced it.
func DecodeResponse(req Request, status int, body []byte) (Response, error) {
	switch status {
	case 200:
	case 403:
		return NotLoggedInResponse{}, nil
	default:
		return nil, fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
	}

	switch req.(type) {
	case Login:
		return LoginResponse{}, nil
	case CreatePersistent, CreateTransient:
		var r CreateResponse
		return r, json.Unmarshal(body, &r)
	case Destroy:
		return DestroyResponse{}, nil
	case Send:
		var r SendResponse
		return r, json.Unmarshal(body, &r)
	case Ack:
		return AckResponse{}, nil
	case Transfer:
		var r TransferResponse
		return r, json.Unmarshal(body, &r)
	case Trace:
		var r TraceResponse
		return r, json.Unmarshal(body, &r)
	case List:
		var r ListResponse
		return r, json.Unmarshal(body, &r)
	case Diagnose:
		var r DiagnosticsResponse
		return r, json.Unmarshal(body, &r)
	case Get:
		return GetResponse{Body: body}, nil
	}
	return nil, fmt.Errorf("undecodable response for %T", req)
}
