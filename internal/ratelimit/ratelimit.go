// Package ratelimit throttles per-client query volume with a token
// bucket per source IP, so a single noisy or abusive client cannot
// monopolize the resolver's worker pool.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per client IP.
type Limiter struct {
	mu              sync.RWMutex
	limitersByIP    map[string]*rate.Limiter
	queriesPerSec   rate.Limit
	burstSize       int
	cleanupInterval time.Duration
	lastCleanup     time.Time
	exemptNets      []*net.IPNet
}

// Config controls the per-client bucket shape.
type Config struct {
	QueriesPerSecond float64
	BurstSize        int
	CleanupInterval  time.Duration
}

// DefaultConfig returns sensible defaults for a public-facing resolver.
func DefaultConfig() Config {
	return Config{
		QueriesPerSecond: 100,
		BurstSize:        200,
		CleanupInterval:  5 * time.Minute,
	}
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	return &Limiter{
		limitersByIP:    make(map[string]*rate.Limiter),
		queriesPerSec:   rate.Limit(cfg.QueriesPerSecond),
		burstSize:       cfg.BurstSize,
		cleanupInterval: cfg.CleanupInterval,
		lastCleanup:     time.Now(),
	}
}

// Allow reports whether a query from ip should proceed. Exempt
// addresses always return true without consuming a token.
func (l *Limiter) Allow(ip net.IP) bool {
	if l.isExempt(ip) {
		return true
	}

	key := ip.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) > l.cleanupInterval {
		l.cleanup()
	}

	limiter, ok := l.limitersByIP[key]
	if !ok {
		limiter = rate.NewLimiter(l.queriesPerSec, l.burstSize)
		l.limitersByIP[key] = limiter
	}
	return limiter.Allow()
}

// AllowString parses ipStr before evaluating it; an unparseable
// address is always denied.
func (l *Limiter) AllowString(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return l.Allow(ip)
}

// AddExempt excludes a network (CIDR or bare IP) from rate limiting.
func (l *Limiter) AddExempt(cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		ip := net.ParseIP(cidr)
		if ip == nil {
			return err
		}
		if ip.To4() != nil {
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}
		} else {
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exemptNets = append(l.exemptNets, ipnet)
	return nil
}

func (l *Limiter) isExempt(ip net.IP) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, exempt := range l.exemptNets {
		if exempt.Contains(ip) {
			return true
		}
	}
	return false
}

// cleanup drops all tracked buckets periodically rather than tracking
// per-bucket last-access time; callers pay a one-time burst refill for
// clients still active across a cleanup boundary.
func (l *Limiter) cleanup() {
	l.limitersByIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// Stats reports current tracking-table size, for metrics export.
type Stats struct {
	TrackedClients int
	ExemptNets     int
}

// Stats returns a snapshot of the limiter's current state.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		TrackedClients: len(l.limitersByIP),
		ExemptNets:     len(l.exemptNets),
	}
}
