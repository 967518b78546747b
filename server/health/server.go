// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/djs55/message-switch/broker"
)

// Config holds health check server configuration.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Server provides health check endpoints for monitoring and orchestration.
type Server struct {
	config Config
	sw     *broker.Switch
	logger *slog.Logger
	server *http.Server
}

// New creates a new health check server.
func New(cfg Config, sw *broker.Switch, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		sw:     sw,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	s.server = &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	return s
}

func (s *Server) Listen(ctx context.Context) error {
	s.logger.Info("health_server_starting", slog.String("addr", s.config.Address))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

type healthStatus struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Connections       uint64 `json:"connections"`
	Queues            int    `json:"queues"`
	MessagesEnqueued  uint64 `json:"messages_enqueued"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	MessagesAcked     uint64 `json:"messages_acked"`
	Transfers         uint64 `json:"transfers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.sw.Stats()
	status := healthStatus{
		Status:            "healthy",
		UptimeSeconds:     int64(stats.GetUptime().Seconds()),
		Connections:       stats.GetCurrentConnections(),
		Queues:            len(s.sw.Directory().List("")),
		MessagesEnqueued:  stats.GetMessagesEnqueued(),
		MessagesDelivered: stats.GetMessagesDelivered(),
		MessagesAcked:     stats.GetMessagesAcked(),
		Transfers:         stats.GetTransfers(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
