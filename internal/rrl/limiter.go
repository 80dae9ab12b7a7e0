// Package rrl implements response rate limiting: per (client-prefix,
// qname, qtype, category) token buckets that protect the resolver from
// being used as a reflection/amplification vector. The algorithm
// follows BIND 9's RRL design and ISC's published recommendations.
package rrl

import (
	"hash/fnv"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-dns/resolverd/internal/packet"
)

const (
	DefaultResponsesPerSecond = 5
	DefaultErrorsPerSecond    = 5
	DefaultNXDOMAINsPerSecond = 5
	DefaultWindow             = 15 // seconds
	DefaultSlip               = 2  // 1 in N limited responses get TC bit

	CategoryResponse = iota
	CategoryError
	CategoryNXDOMAIN
	CategoryReferral
	CategoryNodata
	CategoryAll
)

// Config holds RRL configuration.
type Config struct {
	ResponsesPerSecond int
	ErrorsPerSecond    int
	NXDOMAINsPerSecond int
	ReferralsPerSecond int
	NodataPerSecond    int
	AllPerSecond       int // global limit across all categories

	Window int // seconds

	// Slip: 1 in N limited responses get TC instead of a silent drop.
	// slip=1 sets TC on all, slip=2 sets TC on half. NewLimiter replaces
	// slip=0 with DefaultSlip.
	Slip int

	ExemptPrefixes []*net.IPNet

	IPv4PrefixLen int // default 24
	IPv6PrefixLen int // default 56

	Enabled bool
}

// DefaultConfig returns ISC's recommended starting point.
func DefaultConfig() Config {
	return Config{
		ResponsesPerSecond: DefaultResponsesPerSecond,
		ErrorsPerSecond:    DefaultErrorsPerSecond,
		NXDOMAINsPerSecond: DefaultNXDOMAINsPerSecond,
		ReferralsPerSecond: 5,
		NodataPerSecond:    5,
		AllPerSecond:       100,
		Window:             DefaultWindow,
		Slip:               DefaultSlip,
		IPv4PrefixLen:      24,
		IPv6PrefixLen:      56,
		Enabled:            true,
	}
}

// Action is what the caller should do with a would-be response.
type Action int

const (
	ActionAllow Action = iota
	ActionDrop
	ActionSlip
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionDrop:
		return "drop"
	case ActionSlip:
		return "slip"
	default:
		return "unknown"
	}
}

type bucket struct {
	tokens    int32
	lastCheck int64
	limited   uint32 // limited responses seen, drives the 1-in-Slip choice
}

// Limiter implements response rate limiting across all tracked clients.
type Limiter struct {
	cfg Config

	buckets sync.Map // hash -> *bucket

	allowed atomic.Uint64
	dropped atomic.Uint64
	slipped atomic.Uint64

	stopCleanup chan struct{}
	cleanupDone sync.WaitGroup
}

// NewLimiter builds a Limiter and starts its background bucket
// cleanup goroutine; call Close to stop it.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Slip == 0 {
		cfg.Slip = DefaultSlip
	}

	l := &Limiter{
		cfg:         cfg,
		stopCleanup: make(chan struct{}),
	}

	l.cleanupDone.Add(1)
	go l.cleanup()

	return l
}

// Check reports the action the caller should take for a response to
// clientIP answering qname/qtype, classified into category.
func (l *Limiter) Check(clientIP net.IP, qname packet.Qname, qtype packet.QueryType, category int) Action {
	if !l.cfg.Enabled {
		l.allowed.Add(1)
		return ActionAllow
	}

	if l.isExempt(clientIP) {
		l.allowed.Add(1)
		return ActionAllow
	}

	limit := l.getLimitForCategory(category)
	if limit == 0 {
		l.allowed.Add(1)
		return ActionAllow
	}

	hash := l.bucketHash(clientIP, qname, qtype, category)

	now := time.Now().Unix()
	bucketInterface, _ := l.buckets.LoadOrStore(hash, &bucket{
		tokens:    int32(limit * l.cfg.Window),
		lastCheck: now,
	})
	b := bucketInterface.(*bucket)

	lastCheck := atomic.LoadInt64(&b.lastCheck)
	elapsed := now - lastCheck

	if elapsed > 0 {
		refill := int32(elapsed * int64(limit))
		maxTokens := int32(limit * l.cfg.Window)

		currentTokens := atomic.LoadInt32(&b.tokens)
		newTokens := currentTokens + refill
		if newTokens > maxTokens {
			newTokens = maxTokens
		}

		atomic.StoreInt32(&b.tokens, newTokens)
		atomic.StoreInt64(&b.lastCheck, now)
	}

	tokens := atomic.AddInt32(&b.tokens, -1)

	if tokens >= 0 {
		l.allowed.Add(1)
		return ActionAllow
	}

	atomic.AddInt32(&b.tokens, 1)

	if l.cfg.Slip > 0 && atomic.AddUint32(&b.limited, 1)%uint32(l.cfg.Slip) == 0 {
		l.slipped.Add(1)
		return ActionSlip
	}

	l.dropped.Add(1)
	return ActionDrop
}

func (l *Limiter) isExempt(ip net.IP) bool {
	for _, prefix := range l.cfg.ExemptPrefixes {
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}

func (l *Limiter) getLimitForCategory(category int) int {
	switch category {
	case CategoryResponse:
		return l.cfg.ResponsesPerSecond
	case CategoryError:
		return l.cfg.ErrorsPerSecond
	case CategoryNXDOMAIN:
		return l.cfg.NXDOMAINsPerSecond
	case CategoryReferral:
		return l.cfg.ReferralsPerSecond
	case CategoryNodata:
		return l.cfg.NodataPerSecond
	case CategoryAll:
		return l.cfg.AllPerSecond
	default:
		return l.cfg.AllPerSecond
	}
}

// bucketHash folds the client's address prefix, qname, qtype, and
// category into one key; two queries sharing all four share a bucket.
func (l *Limiter) bucketHash(ip net.IP, qname packet.Qname, qtype packet.QueryType, category int) uint64 {
	h := fnv.New64a()

	h.Write(l.getPrefix(ip))
	h.Write([]byte(qname.String()))

	var buf [4]byte
	t := qtype.Uint16()
	buf[0] = byte(t >> 8)
	buf[1] = byte(t)
	buf[2] = byte(category >> 8)
	buf[3] = byte(category)
	h.Write(buf[:])

	return h.Sum64()
}

// getPrefix returns the client address truncated to its bucketing
// prefix, so clients inside the same /24 (or /56 for IPv6) share rate
// limit exposure the way a single attacker spraying a subnet would.
func (l *Limiter) getPrefix(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		prefixLen := l.cfg.IPv4PrefixLen
		if prefixLen == 0 {
			prefixLen = 24
		}
		return v4.Mask(net.CIDRMask(prefixLen, 32))
	}

	v6 := ip.To16()
	prefixLen := l.cfg.IPv6PrefixLen
	if prefixLen == 0 {
		prefixLen = 56
	}
	return v6.Mask(net.CIDRMask(prefixLen, 128))
}

func (l *Limiter) cleanup() {
	defer l.cleanupDone.Done()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.performCleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) performCleanup() {
	now := time.Now().Unix()
	cutoff := now - int64(l.cfg.Window*2)

	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		if atomic.LoadInt64(&b.lastCheck) < cutoff {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Close stops the background cleanup goroutine and waits for it to exit.
func (l *Limiter) Close() {
	close(l.stopCleanup)
	l.cleanupDone.Wait()
}

// Stats is a snapshot of the limiter's lifetime counters.
type Stats struct {
	Allowed  uint64
	Dropped  uint64
	Slipped  uint64
	Total    uint64
	DropRate float64
}

// GetStats returns the current counters.
func (l *Limiter) GetStats() Stats {
	allowed := l.allowed.Load()
	dropped := l.dropped.Load()
	slipped := l.slipped.Load()
	total := allowed + dropped + slipped

	var dropRate float64
	if total > 0 {
		dropRate = float64(dropped) / float64(total)
	}

	return Stats{
		Allowed:  allowed,
		Dropped:  dropped,
		Slipped:  slipped,
		Total:    total,
		DropRate: dropRate,
	}
}

// CategorizeResponse maps a reply's result code and section sizes to
// an RRL category.
func CategorizeResponse(rcode packet.ResultCode, answerCount, authorityCount int) int {
	switch rcode {
	case packet.NoError:
		if answerCount > 0 {
			return CategoryResponse
		}
		if authorityCount > 0 {
			return CategoryReferral
		}
		return CategoryNodata
	case packet.NxDomain:
		return CategoryNXDOMAIN
	default:
		return CategoryError
	}
}
