// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/djs55/message-switch/broker"
	"github.com/djs55/message-switch/broker/webhook"
	"github.com/djs55/message-switch/config"
	"github.com/djs55/message-switch/internal/daemon"
	"github.com/djs55/message-switch/ratelimit"
	"github.com/djs55/message-switch/server/health"
	httpserver "github.com/djs55/message-switch/server/http"
	"github.com/djs55/message-switch/server/otel"
	"github.com/djs55/message-switch/server/websocket"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	port := flag.Int("port", 8080, "Port to listen on")
	ip := flag.String("ip", "127.0.0.1", "IP address to bind")
	daemonize := flag.Bool("daemon", false, "Detach and run in the background")
	pidfile := flag.String("pidfile", "", "Path to write the daemon pid to")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "ip":
			cfg.Server.IP = *ip
		}
	})

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	addr := net.JoinHostPort(cfg.Server.IP, fmt.Sprint(cfg.Server.Port))

	// Bind before daemonizing, so concurrent clients never observe
	// connection-refused between detach and listen.
	var ln net.Listener
	if daemon.IsChild() {
		ln, err = daemon.Listener()
		if err != nil {
			slog.Error("Failed to recover inherited listener", "error", err)
			os.Exit(1)
		}
	} else {
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			slog.Error("Failed to bind", "addr", addr, "error", err)
			os.Exit(1)
		}
		if *daemonize {
			pid, err := daemon.Spawn(ln.(*net.TCPListener))
			if err != nil {
				slog.Error("Failed to daemonize", "error", err)
				os.Exit(1)
			}
			slog.Info("Daemon started", "pid", pid, "addr", addr)
			return
		}
	}

	if *pidfile != "" {
		if err := daemon.WritePIDFile(*pidfile); err != nil {
			slog.Error("Failed to write pidfile", "path", *pidfile, "error", err)
			os.Exit(1)
		}
		defer daemon.RemovePIDFile(*pidfile)
	}

	slog.Info("Starting message switch",
		"addr", addr,
		"switch_id", cfg.Broker.SwitchID,
		"trace_capacity", cfg.Broker.TraceCapacity,
		"ws_enabled", cfg.Server.WSEnabled,
		"health_enabled", cfg.Server.HealthEnabled,
		"log_level", cfg.Log.Level)

	// Webhook notifier, if configured.
	var notifier webhook.Notifier
	if cfg.Webhook.Enabled {
		n, err := webhook.NewNotifier(cfg.Webhook, cfg.Broker.SwitchID, webhook.NewHTTPSender(), logger)
		if err != nil {
			slog.Error("Failed to start webhook notifier", "error", err)
			os.Exit(1)
		}
		notifier = n
		defer n.Close()
	}

	sw := broker.New(broker.Options{
		Logger:        logger,
		SwitchID:      cfg.Broker.SwitchID,
		TraceCapacity: cfg.Broker.TraceCapacity,
		WWWRoot:       cfg.Server.WWWRoot,
		Notifier:      notifier,
	})

	// OpenTelemetry metrics export, if configured.
	if cfg.Server.MetricsEnabled {
		shutdown, err := otel.InitProvider(cfg.Otel, cfg.Server.MetricsAddr, cfg.Broker.SwitchID)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
		if err := otel.RegisterMetrics(sw.Stats()); err != nil {
			slog.Error("Failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	var limiter *ratelimit.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewIPRateLimiter(
			cfg.RateLimit.ConnectionsPerSecond,
			cfg.RateLimit.Burst,
			cfg.RateLimit.CleanupInterval)
		defer limiter.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	serverErr := make(chan error, 3)

	httpSrv := httpserver.New(httpserver.Config{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Limiter:         limiter,
	}, sw, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpSrv.Serve(ctx, ln); err != nil {
			serverErr <- err
		}
	}()

	if cfg.Server.WSEnabled {
		wsSrv := websocket.New(websocket.Config{
			Address:         cfg.Server.WSAddr,
			Path:            cfg.Server.WSPath,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, sw, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := wsSrv.Listen(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	if cfg.Server.HealthEnabled {
		healthSrv := health.New(health.Config{
			Address:         cfg.Server.HealthAddr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, sw, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthSrv.Listen(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	slog.Info("Message switch started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
		cancel()
	}

	wg.Wait()
	slog.Info("Message switch stopped")
}
