// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djs55/message-switch/broker"
	"github.com/djs55/message-switch/protocol"
	"github.com/djs55/message-switch/ratelimit"
)

type connIDKey struct{}

type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	// Limiter, when set, gates accepted connections per source IP.
	Limiter *ratelimit.IPRateLimiter
}

// Server is the HTTP transport facade. Each accepted TCP connection gets a
// connection-scoped id: requests dispatched on it share session state, and
// the close of the underlying connection is reported to the switch so
// transient queues can be reclaimed.
type Server struct {
	config Config
	sw     *broker.Switch
	logger *slog.Logger
	server *http.Server

	mu      sync.Mutex
	connIDs map[net.Conn]string
}

func New(cfg Config, sw *broker.Switch, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  cfg,
		sw:      sw,
		logger:  logger,
		connIDs: make(map[net.Conn]string),
	}

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     http.HandlerFunc(s.handle),
		ConnContext: s.connContext,
		ConnState:   s.connState,
	}

	return s
}

// connContext assigns the connection its id and announces it to the switch.
func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	id := uuid.New().String()

	s.mu.Lock()
	s.connIDs[c] = id
	s.mu.Unlock()

	s.sw.Connect(id)
	return context.WithValue(ctx, connIDKey{}, id)
}

// connState reports closed connections to the switch.
func (s *Server) connState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}

	s.mu.Lock()
	id, ok := s.connIDs[c]
	delete(s.connIDs, c)
	s.mu.Unlock()

	if ok {
		s.sw.Disconnect(id)
	}
}

// Listen binds the configured address and serves until the context is
// cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the facade on an already-bound listener. The daemon binds
// before detaching and hands the inherited listener here.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("http_server_starting", slog.String("addr", ln.Addr().String()))

	if s.config.Limiter != nil {
		ln = &limitedListener{Listener: ln, limiter: s.config.Limiter, logger: s.logger}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("http_server_shutdown_initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http_server_shutdown_error", slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("http_server_stopped")
		return nil
	}
}

// handle parses the request into a verb, dispatches it and encodes the
// response. Unparseable requests 404 before the core is invoked.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	connID, _ := r.Context().Value(connIDKey{}).(string)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// connection went away mid-body; the close hook cleans up
		return
	}

	req, err := protocol.ParseRequest(r.Method, r.URL.RequestURI(), body)
	if err != nil {
		s.logger.Debug("http_parse_failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	resp, err := s.sw.Dispatch(r.Context(), connID, req)
	if err != nil {
		switch {
		case errors.Is(err, broker.ErrQueueDeleted):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGone)
			fmt.Fprint(w, `{"error":"queue deleted"}`)
		case errors.Is(err, broker.ErrStaticNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, context.Canceled):
			// caller disconnected mid-transfer; nothing to write
		default:
			s.logger.Error("http_dispatch_failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	status, contentType, out, err := protocol.EncodeResponse(resp)
	if err != nil {
		s.logger.Error("http_encode_failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(r.URL.Path))
		if contentType == "" {
			contentType = http.DetectContentType(out)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(out)
}

// limitedListener drops accepted connections whose source IP is over the
// configured rate.
type limitedListener struct {
	net.Listener
	limiter *ratelimit.IPRateLimiter
	logger  *slog.Logger
}

func (l *limitedListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if l.limiter.Allow(conn.RemoteAddr()) {
			return conn, nil
		}
		l.logger.Warn("connection_rate_limited",
			slog.String("remote", conn.RemoteAddr().String()))
		conn.Close()
	}
}
