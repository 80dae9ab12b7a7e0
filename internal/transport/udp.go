// Package transport implements the UDP adapter the resolver loop drives
// for each upstream query: one ephemeral socket per query, one
// round-trip, a timeout the adapter itself owns.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kestrel-dns/resolverd/internal/packet"
)

// ErrReplyTooLarge is returned when an upstream reply exceeds the hard
// 512-byte UDP ceiling this resolver enforces (no EDNS(0), no TCP
// fallback).
var ErrReplyTooLarge = errors.New("transport: upstream reply exceeds 512 bytes")

// UpstreamQuerier sends one query to (ip, port) over UDP and returns the
// raw reply bytes. The core resolver depends on exactly this interface;
// it does not prescribe retries.
type UpstreamQuerier interface {
	Query(ctx context.Context, ip net.IP, port uint16, query []byte) ([]byte, error)
}

// UDPQuerier is the default UpstreamQuerier: one fresh UDP socket per
// query, closed on return, with a caller-supplied timeout.
type UDPQuerier struct {
	Timeout time.Duration
}

// NewUDPQuerier returns a querier using timeout for each round-trip.
func NewUDPQuerier(timeout time.Duration) *UDPQuerier {
	return &UDPQuerier{Timeout: timeout}
}

// Query performs one UDP send/receive round-trip against ip:port. The
// socket is per-call: concurrent queries never share a connection, so
// there is nothing to synchronize between sibling resolver tasks.
func (u *UDPQuerier) Query(ctx context.Context, ip net.IP, port uint16, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, u.Timeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "udp", fmt.Sprintf("%s:%d", ip.String(), port))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s:%d: %w", ip, port, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(query); err != nil {
		return nil, fmt.Errorf("transport: write to %s:%d: %w", ip, port, err)
	}

	buf := make([]byte, packet.MaxMessageSize+1)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("transport: read from %s:%d: %w", ip, port, err)
	}
	if n > packet.MaxMessageSize {
		return nil, ErrReplyTooLarge
	}

	reply := make([]byte, n)
	copy(reply, buf[:n])
	return reply, nil
}
