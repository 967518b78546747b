// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tcpAddr(ip string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 12345}
}

func TestAllowWithinBurst(t *testing.T) {
	l := NewIPRateLimiter(1, 3, time.Minute)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(tcpAddr("10.0.0.1")), "connection %d within burst", i)
	}
	assert.False(t, l.Allow(tcpAddr("10.0.0.1")))
}

func TestLimitsPerIP(t *testing.T) {
	l := NewIPRateLimiter(1, 1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow(tcpAddr("10.0.0.1")))
	assert.False(t, l.Allow(tcpAddr("10.0.0.1")))
	// a different IP has its own bucket
	assert.True(t, l.Allow(tcpAddr("10.0.0.2")))
}

func TestRefill(t *testing.T) {
	l := NewIPRateLimiter(100, 1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow(tcpAddr("10.0.0.1")))
	assert.False(t, l.Allow(tcpAddr("10.0.0.1")))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow(tcpAddr("10.0.0.1")))
}

func TestUnknownAddrAllowed(t *testing.T) {
	l := NewIPRateLimiter(1, 1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow(&net.UnixAddr{Name: "@sock", Net: "unix"}))
}
