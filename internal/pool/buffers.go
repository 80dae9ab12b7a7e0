// Package pool reduces per-query GC pressure by reusing datagram
// buffers. There is exactly one size class: this resolver enforces a
// hard 512-byte UDP ceiling (no EDNS(0), no TCP fallback), so unlike a
// full authoritative server there is nothing to size-tier.
package pool

import (
	"sync"

	"github.com/kestrel-dns/resolverd/internal/packet"
)

// datagramPool holds []byte slices of exactly packet.MaxMessageSize
// capacity, used for receiving client datagrams. Upstream replies and
// outgoing replies are allocated separately, not drawn from this pool.
var datagramPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, packet.MaxMessageSize)
		return &buf
	},
}

// GetDatagram returns a buffer whose length and capacity are both
// packet.MaxMessageSize, ready for net.Conn.Read.
func GetDatagram() []byte {
	bufPtr := datagramPool.Get().(*[]byte)
	return (*bufPtr)[:packet.MaxMessageSize]
}

// PutDatagram returns buf to the pool. Buffers with a capacity other
// than packet.MaxMessageSize are dropped rather than pooled, since
// they did not come from GetDatagram.
func PutDatagram(buf []byte) {
	if cap(buf) != packet.MaxMessageSize {
		return
	}
	buf = buf[:cap(buf)]
	datagramPool.Put(&buf)
}

// Stats is a pair of pool allocation counters. GetDatagram and
// PutDatagram do not update it, and internal/metrics does not read it.
type Stats struct {
	Gets uint64
	Puts uint64
}
