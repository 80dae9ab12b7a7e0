// Package random provides cryptographically secure randomization for the
// resolver's anti-spoofing defenses: transaction IDs and the uniform
// selection used to pick among equally valid answer or nameserver
// candidates. NEVER use math/rand here - a predictable transaction ID or
// selection is exactly what a Kaminsky-style cache poisoning attempt
// guesses against.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// TransactionID generates a cryptographically random 16-bit transaction ID.
func TransactionID() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return binary.BigEndian.Uint16(buf[:])
}

// IntN returns a uniformly distributed value in [0, n) using rejection
// sampling against crypto/rand, so the result carries no modulo bias even
// when n does not divide 2^32 evenly. It panics if n <= 0, the same
// contract as math/rand/v2.IntN, since callers only ever use it to index
// a known non-empty slice.
func IntN(n int) int {
	if n <= 0 {
		panic("random: IntN called with n <= 0")
	}
	max := uint64(n)
	const span = uint64(1) << 32
	// largest multiple of max that fits in 32 bits; rejecting draws at or
	// above it removes the bias a plain modulo would introduce
	limit := span - span%max

	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		v := binary.BigEndian.Uint32(buf[:])
		if uint64(v) < limit {
			return int(uint64(v) % max)
		}
	}
}
