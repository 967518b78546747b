// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/djs55/message-switch/broker/events"
	"github.com/djs55/message-switch/config"
)

// GenericNotifier implements webhook notifications with worker pool and circuit breaker.
type GenericNotifier struct {
	cfg        config.WebhookConfig
	switchID   string
	endpoints  []endpointConfig
	eventQueue chan eventJob
	breakers   map[string]*gobreaker.CircuitBreaker
	sender     Sender
	logger     *slog.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

type endpointConfig struct {
	name          string
	url           string
	eventFilters  map[string]bool // event type filters
	queuePrefixes []string        // queue name filters
	headers       map[string]string
	timeout       time.Duration
	retryConfig   config.RetryConfig
}

type eventJob struct {
	event    events.Event
	endpoint endpointConfig
	attempt  int
}

// NewNotifier creates a new generic webhook notifier.
func NewNotifier(cfg config.WebhookConfig, switchID string, sender Sender, logger *slog.Logger) (*GenericNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	endpoints := make([]endpointConfig, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		eventFilters := make(map[string]bool)
		for _, eventType := range ep.Events {
			eventFilters[eventType] = true
		}

		timeout := cfg.Defaults.Timeout
		if ep.Timeout > 0 {
			timeout = ep.Timeout
		}

		retryConfig := cfg.Defaults.Retry
		if ep.Retry != nil {
			retryConfig = *ep.Retry
		}

		endpoints = append(endpoints, endpointConfig{
			name:          ep.Name,
			url:           ep.URL,
			eventFilters:  eventFilters,
			queuePrefixes: ep.QueuePrefixes,
			headers:       ep.Headers,
			timeout:       timeout,
			retryConfig:   retryConfig,
		})
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, ep := range endpoints {
		breakers[ep.name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        ep.name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     cfg.Defaults.CircuitBreaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.Defaults.CircuitBreaker.FailureThreshold)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("webhook circuit breaker state changed",
					slog.String("endpoint", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}

	n := &GenericNotifier{
		cfg:        cfg,
		switchID:   switchID,
		endpoints:  endpoints,
		eventQueue: make(chan eventJob, cfg.QueueSize),
		breakers:   breakers,
		sender:     sender,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	logger.Info("webhook notifier started",
		slog.Int("workers", cfg.Workers),
		slog.Int("queue_size", cfg.QueueSize),
		slog.Int("endpoints", len(endpoints)))

	return n, nil
}

// Notify sends an event to all matching endpoints asynchronously.
func (n *GenericNotifier) Notify(ctx context.Context, event interface{}) error {
	ev, ok := event.(events.Event)
	if !ok {
		return fmt.Errorf("event must implement events.Event interface")
	}

	for _, endpoint := range n.endpoints {
		if !n.shouldNotify(endpoint, ev) {
			continue
		}

		job := eventJob{
			event:    ev,
			endpoint: endpoint,
			attempt:  0,
		}

		select {
		case n.eventQueue <- job:
		default:
			// Queue full, apply drop policy
			if n.cfg.DropPolicy == "oldest" {
				select {
				case <-n.eventQueue: // drop oldest
				default:
				}
				select {
				case n.eventQueue <- job:
				default:
					n.logger.Error("webhook queue full, event dropped",
						slog.String("event_type", ev.Type()),
						slog.String("endpoint", endpoint.name))
				}
			} else {
				n.logger.Error("webhook queue full, event dropped",
					slog.String("event_type", ev.Type()),
					slog.String("endpoint", endpoint.name))
			}
		}
	}

	return nil
}

// shouldNotify checks if an endpoint should be notified for this event.
func (n *GenericNotifier) shouldNotify(endpoint endpointConfig, event events.Event) bool {
	if len(endpoint.eventFilters) > 0 && !endpoint.eventFilters[event.Type()] {
		return false
	}

	// Queue filter applies to queue-scoped events only.
	if event.Queue() != "" && len(endpoint.queuePrefixes) > 0 {
		matched := false
		for _, prefix := range endpoint.queuePrefixes {
			if strings.HasPrefix(event.Queue(), prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// worker processes events from the queue.
func (n *GenericNotifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case job := <-n.eventQueue:
			n.processJob(job)
		}
	}
}

// processJob sends a webhook with retry logic.
func (n *GenericNotifier) processJob(job eventJob) {
	breaker := n.breakers[job.endpoint.name]

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, n.sendWebhook(job)
	})
	if err == nil {
		return
	}

	if job.attempt < job.endpoint.retryConfig.MaxAttempts-1 {
		job.attempt++
		delay := retryDelay(job.attempt, job.endpoint.retryConfig)

		n.logger.Debug("webhook delivery failed, retrying",
			slog.String("endpoint", job.endpoint.name),
			slog.String("event_type", job.event.Type()),
			slog.Int("attempt", job.attempt),
			slog.Duration("retry_after", delay),
			slog.String("error", err.Error()))

		time.AfterFunc(delay, func() {
			select {
			case n.eventQueue <- job:
			default:
				n.logger.Error("failed to requeue event for retry",
					slog.String("endpoint", job.endpoint.name),
					slog.String("event_type", job.event.Type()))
			}
		})
	} else {
		n.logger.Error("webhook delivery failed after max retries",
			slog.String("endpoint", job.endpoint.name),
			slog.String("event_type", job.event.Type()),
			slog.Int("attempts", job.attempt+1),
			slog.String("error", err.Error()))
	}
}

// sendWebhook marshals the event and delegates to the protocol-specific sender.
func (n *GenericNotifier) sendWebhook(job eventJob) error {
	envelope := job.event.Wrap(n.switchID)

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), job.endpoint.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, job.endpoint.url, job.endpoint.headers, payload, job.endpoint.timeout); err != nil {
		return err
	}

	n.logger.Debug("webhook delivered successfully",
		slog.String("endpoint", job.endpoint.name),
		slog.String("event_type", job.event.Type()))

	return nil
}

// retryDelay calculates exponential backoff capped at the configured max.
func retryDelay(attempt int, cfg config.RetryConfig) time.Duration {
	delay := float64(cfg.InitialInterval) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxInterval) {
		delay = float64(cfg.MaxInterval)
	}
	return time.Duration(delay)
}

// Close gracefully shuts down the notifier.
func (n *GenericNotifier) Close() error {
	n.logger.Info("shutting down webhook notifier")

	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("webhook notifier stopped gracefully")
	case <-time.After(n.cfg.ShutdownTimeout):
		n.logger.Warn("webhook notifier shutdown timeout, some events may be lost",
			slog.Int("queue_depth", len(n.eventQueue)))
	}

	return nil
}
