// Package server is the outer shell the spec explicitly places out of
// the core's scope: a UDP listener that receives client datagrams and
// dispatches each one as a job on a bounded worker pool, which drives
// the codec and resolver and writes the reply back to the client. It
// is the ambient-complete wiring a runnable daemon needs; none of its
// logic is part of the wire codec or resolution algorithm themselves.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/kestrel-dns/resolverd/internal/acl"
	"github.com/kestrel-dns/resolverd/internal/metrics"
	"github.com/kestrel-dns/resolverd/internal/packet"
	"github.com/kestrel-dns/resolverd/internal/pool"
	"github.com/kestrel-dns/resolverd/internal/ratelimit"
	"github.com/kestrel-dns/resolverd/internal/resolver"
	"github.com/kestrel-dns/resolverd/internal/rrl"
	"github.com/kestrel-dns/resolverd/internal/transport"
	"github.com/kestrel-dns/resolverd/internal/worker"
)

// Config bundles everything needed to stand up one listener.
type Config struct {
	Listen             string
	MaxDelegationDepth int
	QueryTimeout       time.Duration
	Workers            int
	QueueSize          int

	RateLimit  ratelimit.Config
	ACLAllow   []string
	ACLDeny    []string
	ACLDefault bool // default-allow if true
	RRL        rrl.Config
	Logger     *log.Logger
}

// Server owns the UDP socket, the worker pool, and the enrichment
// layers (ACL, per-client rate limiting, response rate limiting) that
// sit in front of the resolver for every received datagram.
type Server struct {
	cfg      Config
	conn     *net.UDPConn
	pool     *worker.Pool
	resolver *resolver.Recursive
	acl      *acl.List
	rl       *ratelimit.Limiter
	rrl      *rrl.Limiter
	logger   *log.Logger

	done chan struct{}
}

// New wires the server's dependencies from cfg but does not yet bind a
// socket; call Start for that.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	aclList := acl.New(cfg.ACLDefault)
	for _, cidr := range cfg.ACLAllow {
		if err := aclList.Allow(cidr); err != nil {
			return nil, fmt.Errorf("server: acl allow %q: %w", cidr, err)
		}
	}
	for _, cidr := range cfg.ACLDeny {
		if err := aclList.Deny(cidr); err != nil {
			return nil, fmt.Errorf("server: acl deny %q: %w", cidr, err)
		}
	}

	querier := transport.NewUDPQuerier(cfg.QueryTimeout)
	res := resolver.New(querier, resolver.Config{MaxDelegationDepth: cfg.MaxDelegationDepth})

	return &Server{
		cfg:      cfg,
		resolver: res,
		acl:      aclList,
		rl:       ratelimit.New(cfg.RateLimit),
		rrl:      rrl.NewLimiter(cfg.RRL),
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start binds the UDP socket and launches the worker pool that drains
// it. Each received datagram becomes one job; independent jobs share no
// mutable state beyond the read-only ACL/rate-limiter/resolver
// references, matching the spec's concurrency model.
func (s *Server) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server: resolve %s: %w", s.cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Listen, err)
	}
	// 4MB socket buffers absorb bursts without the kernel dropping
	// datagrams ahead of the worker pool's own queueing.
	conn.SetReadBuffer(4 * 1024 * 1024)
	conn.SetWriteBuffer(4 * 1024 * 1024)
	s.conn = conn

	s.pool = worker.NewPool(worker.Config{
		Workers:   s.cfg.Workers,
		QueueSize: s.cfg.QueueSize,
		PanicHandler: func(r interface{}) {
			s.logger.Printf("server: worker panic recovered: %v", r)
		},
	})

	go s.acceptLoop()
	go s.reportQueueDepth()
	s.logger.Printf("server: listening on %s", s.cfg.Listen)
	return nil
}

// reportQueueDepth samples the worker pool's queue depth for the
// resolverd_worker_queue_depth gauge until the server stops. A
// saturated queue is the earliest external signal that the pool is
// undersized for the incoming query rate.
func (s *Server) reportQueueDepth() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			metrics.WorkerQueueDepth.Set(float64(s.pool.QueueDepth()))
		}
	}
}

// Stop closes the socket and drains the worker pool, letting in-flight
// queries finish before returning.
func (s *Server) Stop() error {
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
	}
	s.rrl.Close()
	if s.pool != nil {
		return s.pool.CloseTimeout(10 * time.Second)
	}
	return nil
}

func (s *Server) acceptLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		buf := pool.GetDatagram()
		n, clientAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			pool.PutDatagram(buf)
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		datagram := buf[:n]
		job := worker.QueryJob{
			Datagram:   datagram,
			ClientAddr: clientAddr,
			Handle:     s.handleDatagram,
			Release:    func() { pool.PutDatagram(buf) },
		}

		if err := s.pool.SubmitAsync(context.Background(), job); err != nil {
			pool.PutDatagram(buf)
			s.logger.Printf("server: dropping query from %s: %v", clientAddr, err)
		}
	}
}

// handleDatagram runs one client query through ACL, per-client rate
// limiting, the resolver, and response rate limiting, in that order,
// then writes whatever reply (if any) results back to clientAddr.
func (s *Server) handleDatagram(ctx context.Context, datagram []byte, clientAddr *net.UDPAddr) {
	start := time.Now()
	defer metrics.ObserveResolveDuration(start)

	if !s.acl.IsAllowed(clientAddr.IP) {
		s.reply(clientAddr, refusal(datagram))
		return
	}
	if !s.rl.Allow(clientAddr.IP) {
		metrics.RateLimitDrops.Inc()
		return
	}

	req, err := packet.Parse(datagram)
	if err != nil {
		s.reply(clientAddr, formErrorFor(datagram))
		return
	}

	qtype := "unknown"
	if len(req.Questions) > 0 {
		qtype = req.Questions[0].Type.String()
	}
	metrics.QueriesTotal.WithLabelValues(qtype).Inc()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	resp := s.resolver.ResolveQuery(ctx, req)

	metrics.ResponsesTotal.WithLabelValues(resp.Header.Flags.Rescode.String()).Inc()

	category := rrl.CategorizeResponse(resp.Header.Flags.Rescode, len(resp.Answers), len(resp.Authority))
	var qname packet.Qname
	var qtypeVal packet.QueryType
	if len(resp.Questions) > 0 {
		qname, qtypeVal = resp.Questions[0].Name, resp.Questions[0].Type
	}
	switch s.rrl.Check(clientAddr.IP, qname, qtypeVal, category) {
	case rrl.ActionDrop:
		metrics.RRLActions.WithLabelValues("drop").Inc()
		return
	case rrl.ActionSlip:
		metrics.RRLActions.WithLabelValues("slip").Inc()
		resp.Header.Flags.TruncatedMessage = true
	default:
		metrics.RRLActions.WithLabelValues("allow").Inc()
	}

	s.reply(clientAddr, resp.Emit())
}

func (s *Server) reply(addr *net.UDPAddr, wire []byte) {
	if _, err := s.conn.WriteToUDP(wire, addr); err != nil {
		s.logger.Printf("server: write to %s: %v", addr, err)
	}
}

// refusal builds a minimal REFUSED reply, reusing the client's
// transaction ID when the header parsed cleanly and falling back to 0
// when it didn't (an ACL-denied client gets a reply either way).
func refusal(datagram []byte) []byte {
	id := uint16(0)
	if h, err := packet.ParseHeader(packet.NewBuffer(datagram)); err == nil {
		id = h.ID
	}
	return errorReply(id, packet.Refused)
}

func formErrorFor(datagram []byte) []byte {
	id := uint16(0)
	if h, err := packet.ParseHeader(packet.NewBuffer(datagram)); err == nil {
		id = h.ID
	}
	return errorReply(id, packet.FormErr)
}

func errorReply(id uint16, rescode packet.ResultCode) []byte {
	msg := packet.Message{
		Header: packet.Header{
			ID: id,
			Flags: packet.HeaderFlags{
				Response:           true,
				RecursionAvailable: true,
				Rescode:            rescode,
			},
		},
	}
	return msg.Emit()
}
