// Package resolver implements the iterative DNS resolution loop: given
// a question, walk delegations from a root server down to an answer or
// a terminal NXDOMAIN, resolving glue-less referrals recursively.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/kestrel-dns/resolverd/internal/metrics"
	"github.com/kestrel-dns/resolverd/internal/packet"
	"github.com/kestrel-dns/resolverd/internal/random"
	"github.com/kestrel-dns/resolverd/internal/security"
	"github.com/kestrel-dns/resolverd/internal/transport"
)

// rootServers is the compiled-in set of 13 IANA root server IPv4
// addresses. This is the only mutable-looking global in the package,
// and it is never mutated: read-only, initialized once at process
// start, exactly as the spec requires.
var rootServers = []net.IP{
	net.ParseIP("198.41.0.4"),     // a.root-servers.net
	net.ParseIP("199.9.14.201"),   // b.root-servers.net
	net.ParseIP("192.33.4.12"),    // c.root-servers.net
	net.ParseIP("199.7.91.13"),    // d.root-servers.net
	net.ParseIP("192.203.230.10"), // e.root-servers.net
	net.ParseIP("192.5.5.241"),    // f.root-servers.net
	net.ParseIP("192.112.36.4"),   // g.root-servers.net
	net.ParseIP("198.97.190.53"),  // h.root-servers.net
	net.ParseIP("192.36.148.17"),  // i.root-servers.net
	net.ParseIP("192.58.128.30"),  // j.root-servers.net
	net.ParseIP("193.0.14.129"),   // k.root-servers.net
	net.ParseIP("199.7.83.42"),    // l.root-servers.net
	net.ParseIP("202.12.27.33"),   // m.root-servers.net
}

const upstreamPort = 53

// ErrMaxDelegationDepth is returned internally when a delegation chain
// runs past the configured bound; callers only ever see it surface as
// a ServFail in the client-facing reply.
var ErrMaxDelegationDepth = errors.New("resolver: max delegation depth reached")

// Config controls the resolver loop's bounds. It carries no cache, no
// cookie, and no EDNS(0) settings, since none of those are part of this
// core.
type Config struct {
	// MaxDelegationDepth bounds the iterative walk (including nested
	// glue-less NS resolution) so a pathological or hostile delegation
	// chain cannot loop forever. The spec names no fixed value; 20
	// matches common recursive-resolver practice.
	MaxDelegationDepth int
}

func (c Config) withDefaults() Config {
	if c.MaxDelegationDepth <= 0 {
		c.MaxDelegationDepth = 20
	}
	return c
}

// Recursive is the iterative resolution engine: state-free between
// calls to ResolveQuery, since no cross-query cache is part of the core.
type Recursive struct {
	cfg     Config
	querier transport.UpstreamQuerier
}

// New builds a resolver that issues upstream queries through querier.
func New(querier transport.UpstreamQuerier, cfg Config) *Recursive {
	return &Recursive{cfg: cfg.withDefaults(), querier: querier}
}

// ResolveQuery builds the client-facing reply for req, per the client
// response assembly described in the spec: FormErr for a question-less
// request, ServFail on internal resolver failure, otherwise the
// upstream's own rescode and sections.
func (r *Recursive) ResolveQuery(ctx context.Context, req packet.Message) packet.Message {
	resp := packet.Message{
		Header: packet.Header{
			ID: req.Header.ID,
			Flags: packet.HeaderFlags{
				Response:           true,
				RecursionDesired:   true,
				RecursionAvailable: true,
			},
		},
	}

	if len(req.Questions) == 0 {
		resp.Header.Flags.Rescode = packet.FormErr
		return resp
	}
	q := req.Questions[0]
	resp.Questions = []packet.Question{q}

	upstream, err := r.resolveIterative(ctx, q.Name, q.Type, 0)
	if err != nil {
		resp.Header.Flags.Rescode = packet.ServFail
		return resp
	}

	resp.Header.Flags.Rescode = upstream.Header.Flags.Rescode
	resp.Answers = upstream.Answers
	resp.Authority = upstream.Authority
	resp.Additional = upstream.Additional
	return resp
}

// resolveIterative is the loop in §4.7: starting from a random root
// server, follow referrals (with or without glue) until an answer or
// NXDOMAIN terminal is reached, or the depth bound is exceeded.
func (r *Recursive) resolveIterative(ctx context.Context, qname packet.Qname, qtype packet.QueryType, depth int) (packet.Message, error) {
	if depth >= r.cfg.MaxDelegationDepth {
		return packet.Message{}, ErrMaxDelegationDepth
	}

	nsIP := rootServers[random.IntN(len(rootServers))]

	for {
		reply, err := r.queryNameserver(ctx, nsIP, qname, qtype)
		if err != nil {
			return packet.Message{}, fmt.Errorf("resolver: query %s: %w", nsIP, err)
		}

		if reply.Header.Flags.Rescode == packet.NoError && len(reply.Answers) > 0 {
			return reply, nil
		}
		if reply.Header.Flags.Rescode == packet.NxDomain {
			return reply, nil
		}

		reply.Additional = security.HardenGlue(reply.Additional, reply.Authority)

		if rec, ok := reply.GetResolvedNS(qname, random.IntN); ok {
			zone := qname
			for _, auth := range reply.Authority {
				if ns, isNS := auth.(packet.NSRecord); isNS && ns.Host.Equal(rec.Domain()) && qname.EndsWith(ns.Domain()) {
					zone = ns.Domain()
					break
				}
			}
			if !security.InBailiwick(rec.Domain(), zone) {
				// Root/TLD delegations routinely glue nameservers hosted
				// outside the zone being delegated (a.gtld-servers.net
				// for "com."), so this is observational, not a filter:
				// dropping every out-of-bailiwick glue record would break
				// ordinary resolution, not just poisoning attempts.
				metrics.OutOfBailiwickGlueTotal.Inc()
			}
			nsIP = recordAddr(rec)
			depth++
			if depth >= r.cfg.MaxDelegationDepth {
				return packet.Message{}, ErrMaxDelegationDepth
			}
			continue
		}

		if host, ok := reply.GetUnresolvedNS(qname); ok {
			sub, err := r.resolveIterative(ctx, host, packet.TypeA, depth+1)
			if err == nil {
				if rec, ok := sub.GetRandomA(random.IntN); ok {
					nsIP = recordAddr(rec)
					depth++
					continue
				}
			}
			return reply, nil
		}

		return reply, nil
	}
}

func recordAddr(rec packet.Record) net.IP {
	switch a := rec.(type) {
	case packet.ARecord:
		return net.IP(a.Addr.AsSlice())
	case packet.AAAARecord:
		return net.IP(a.Addr.AsSlice())
	default:
		return nil
	}
}

func (r *Recursive) queryNameserver(ctx context.Context, ip net.IP, qname packet.Qname, qtype packet.QueryType) (packet.Message, error) {
	id := random.TransactionID()
	query := packet.NewQueryMessage(id, packet.Question{Name: qname, Type: qtype})
	wire := query.Emit()

	// 0x20 case randomization: an off-path attacker forging a reply has
	// to guess the random per-query case pattern as well as the
	// transaction ID, on top of source port and the question itself.
	// Qname normalizes to lower-case on construction, so the pattern is
	// applied to the already-serialized question name's wire bytes,
	// which this resolver never compresses on emit.
	if key, err := security.NewCaseKey(); err == nil {
		key.Apply0x20Bytes(wire[packet.HeaderSize:questionNameEnd(wire)])
	}

	raw, err := r.querier.Query(ctx, ip, upstreamPort, wire)
	if err != nil {
		metrics.UpstreamQueries.WithLabelValues("error").Inc()
		return packet.Message{}, err
	}

	reply, err := packet.Parse(raw)
	if err != nil {
		metrics.UpstreamQueries.WithLabelValues("parse_error").Inc()
		return packet.Message{}, fmt.Errorf("resolver: parse reply from %s: %w", ip, err)
	}
	metrics.UpstreamQueries.WithLabelValues("ok").Inc()
	return reply, nil
}

// questionNameEnd returns the offset of the byte following the first
// question's name in a freshly built query message: the terminating
// zero octet of an uncompressed qname, or the end of the buffer if
// none is found (defensive; NewQueryMessage always emits one).
func questionNameEnd(wire []byte) int {
	for i := packet.HeaderSize; i < len(wire); i++ {
		if wire[i] == 0 {
			return i + 1
		}
	}
	return len(wire)
}
