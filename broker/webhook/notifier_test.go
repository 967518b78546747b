// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djs55/message-switch/broker/events"
	"github.com/djs55/message-switch/config"
)

type mockSender struct {
	mu       sync.Mutex
	payloads [][]byte
	urls     []string
	fail     int // fail the first N sends
}

func (s *mockSender) Send(ctx context.Context, url string, headers map[string]string, payload []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail > 0 {
		s.fail--
		return errors.New("send failed")
	}
	s.urls = append(s.urls, url)
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *mockSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func testConfig(endpoints ...config.WebhookEndpoint) config.WebhookConfig {
	cfg := config.Default().Webhook
	cfg.Enabled = true
	cfg.Workers = 2
	cfg.QueueSize = 100
	cfg.ShutdownTimeout = time.Second
	cfg.Defaults.Retry.InitialInterval = 10 * time.Millisecond
	cfg.Defaults.Retry.MaxInterval = 50 * time.Millisecond
	cfg.Endpoints = endpoints
	return cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestNotifyDelivers(t *testing.T) {
	sender := &mockSender{}
	cfg := testConfig(config.WebhookEndpoint{Name: "all", URL: "http://example/hook"})

	n, err := NewNotifier(cfg, "switch-test", sender, nil)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), events.QueueCreated{Name: "svc"}))

	waitFor(t, func() bool { return sender.sent() == 1 })

	var env events.Envelope
	require.NoError(t, json.Unmarshal(sender.payloads[0], &env))
	assert.Equal(t, events.TypeQueueCreated, env.EventType)
	assert.Equal(t, "switch-test", env.SwitchID)
	assert.NotEmpty(t, env.EventID)
}

func TestNotifyFiltersByEventType(t *testing.T) {
	sender := &mockSender{}
	cfg := testConfig(config.WebhookEndpoint{
		Name:   "acks-only",
		URL:    "http://example/hook",
		Events: []string{events.TypeMessageAcked},
	})

	n, err := NewNotifier(cfg, "switch-test", sender, nil)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), events.QueueCreated{Name: "svc"}))
	require.NoError(t, n.Notify(context.Background(), events.MessageAcked{QueueName: "svc", Index: 1}))

	waitFor(t, func() bool { return sender.sent() == 1 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sender.sent())
}

func TestNotifyFiltersByQueuePrefix(t *testing.T) {
	sender := &mockSender{}
	cfg := testConfig(config.WebhookEndpoint{
		Name:          "svc-only",
		URL:           "http://example/hook",
		QueuePrefixes: []string{"svc."},
	})

	n, err := NewNotifier(cfg, "switch-test", sender, nil)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), events.QueueCreated{Name: "other"}))
	require.NoError(t, n.Notify(context.Background(), events.QueueCreated{Name: "svc.compute"}))

	waitFor(t, func() bool { return sender.sent() == 1 })

	var env events.Envelope
	require.NoError(t, json.Unmarshal(sender.payloads[0], &env))
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), "svc.compute")
}

func TestNotifyRetries(t *testing.T) {
	sender := &mockSender{fail: 2}
	cfg := testConfig(config.WebhookEndpoint{Name: "flaky", URL: "http://example/hook"})

	n, err := NewNotifier(cfg, "switch-test", sender, nil)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), events.QueueDestroyed{Name: "svc"}))

	waitFor(t, func() bool { return sender.sent() == 1 })
}

func TestNotifyRejectsNonEvent(t *testing.T) {
	sender := &mockSender{}
	n, err := NewNotifier(testConfig(), "switch-test", sender, nil)
	require.NoError(t, err)
	defer n.Close()

	assert.Error(t, n.Notify(context.Background(), "not an event"))
}
