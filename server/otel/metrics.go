// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/djs55/message-switch/broker"
)

// RegisterMetrics publishes the switch counters as observable instruments
// on the global meter provider. The callback reads the live Stats on every
// export, so the dispatch path carries no instrumentation of its own.
func RegisterMetrics(stats *broker.Stats) error {
	meter := otel.Meter("message-switch")

	connectionsCurrent, err := meter.Int64ObservableUpDownCounter(
		"switch.connections.current",
		metric.WithDescription("Currently open transport connections"),
	)
	if err != nil {
		return fmt.Errorf("failed to create connections gauge: %w", err)
	}

	connectionsTotal, err := meter.Int64ObservableCounter(
		"switch.connections.total",
		metric.WithDescription("Total accepted transport connections"),
	)
	if err != nil {
		return fmt.Errorf("failed to create connections counter: %w", err)
	}

	enqueued, err := meter.Int64ObservableCounter(
		"switch.messages.enqueued.total",
		metric.WithDescription("Total messages enqueued"),
	)
	if err != nil {
		return fmt.Errorf("failed to create enqueued counter: %w", err)
	}

	delivered, err := meter.Int64ObservableCounter(
		"switch.messages.delivered.total",
		metric.WithDescription("Total messages returned by transfers"),
	)
	if err != nil {
		return fmt.Errorf("failed to create delivered counter: %w", err)
	}

	acked, err := meter.Int64ObservableCounter(
		"switch.messages.acked.total",
		metric.WithDescription("Total messages acknowledged"),
	)
	if err != nil {
		return fmt.Errorf("failed to create acked counter: %w", err)
	}

	transfers, err := meter.Int64ObservableCounter(
		"switch.transfers.total",
		metric.WithDescription("Total transfer requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfers counter: %w", err)
	}

	transferTimeouts, err := meter.Int64ObservableCounter(
		"switch.transfers.timeouts.total",
		metric.WithDescription("Transfers that returned empty after their full wait"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer timeouts counter: %w", err)
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(connectionsCurrent, int64(stats.GetCurrentConnections()))
			o.ObserveInt64(connectionsTotal, int64(stats.GetTotalConnections()))
			o.ObserveInt64(enqueued, int64(stats.GetMessagesEnqueued()))
			o.ObserveInt64(delivered, int64(stats.GetMessagesDelivered()))
			o.ObserveInt64(acked, int64(stats.GetMessagesAcked()))
			o.ObserveInt64(transfers, int64(stats.GetTransfers()))
			o.ObserveInt64(transferTimeouts, int64(stats.GetTransferTimeouts()))
			return nil
		},
		connectionsCurrent, connectionsTotal, enqueued, delivered, acked, transfers, transferTimeouts,
	)
	if err != nil {
		return fmt.Errorf("failed to register metrics callback: %w", err)
	}

	return nil
}
