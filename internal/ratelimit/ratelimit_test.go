package ratelimit

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Basic(t *testing.T) {
	l := New(Config{QueriesPerSecond: 10, BurstSize: 10, CleanupInterval: time.Minute})
	ip := net.ParseIP("192.168.1.1")

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(ip), "query %d should be allowed", i)
	}
	assert.False(t, l.Allow(ip), "query 11 should be rate limited")
}

func TestLimiter_DifferentClients(t *testing.T) {
	l := New(Config{QueriesPerSecond: 5, BurstSize: 5, CleanupInterval: time.Minute})
	ip1 := net.ParseIP("192.168.1.1")
	ip2 := net.ParseIP("192.168.1.2")

	for i := 0; i < 5; i++ {
		l.Allow(ip1)
	}
	assert.False(t, l.Allow(ip1))

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(ip2), "ip2 query %d should be allowed", i)
	}
}

func TestLimiter_Exempt(t *testing.T) {
	l := New(Config{QueriesPerSecond: 1, BurstSize: 1, CleanupInterval: time.Minute})
	require.NoError(t, l.AddExempt("127.0.0.0/8"))

	ip := net.ParseIP("127.0.0.1")
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(ip), "exempt IP should always be allowed")
	}
}

func TestLimiter_AllowString_RejectsGarbage(t *testing.T) {
	l := New(DefaultConfig())
	assert.False(t, l.AllowString("not-an-ip"))
}
