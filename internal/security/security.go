// Package security implements the resolver's anti-spoofing hardening:
// 0x20 case randomization, an in-bailiwick check, and filtering of
// referral glue down to the hosts the referral's NS records name. None
// of this is required by the core codec
// or resolver loop; it is enrichment a production resolver carries
// alongside them.
package security

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/dchest/siphash"
	"github.com/kestrel-dns/resolverd/internal/packet"
)

// CaseKey seeds one query's 0x20 case randomization. A fresh key per
// query means an off-path attacker forging a reply cannot predict
// which letters were upper-cased without also guessing the key, unlike
// a fixed or per-process key.
type CaseKey struct {
	k0, k1 uint64
}

// NewCaseKey draws a fresh key from crypto/rand. NEVER use math/rand
// here: a predictable key defeats the entire point of 0x20 encoding.
func NewCaseKey() (CaseKey, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return CaseKey{}, fmt.Errorf("security: generating case key: %w", err)
	}
	return CaseKey{
		k0: binary.BigEndian.Uint64(buf[0:8]),
		k1: binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}

// Apply0x20 returns name with ASCII letters case-randomized under k.
// The decision for each letter position is siphash(k, position)
// rather than an independent coin flip per letter, so the whole pattern
// is reproducible from the key alone (useful for logging/debugging) but
// still unpredictable to anyone without it.
func (k CaseKey) Apply0x20(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			if k.bitAt(i) {
				c -= 'a' - 'A'
			}
		case c >= 'A' && c <= 'Z':
			if k.bitAt(i) {
				c += 'a' - 'A'
			}
		}
		out[i] = c
	}
	return string(out)
}

// Apply0x20Bytes case-randomizes raw wire-encoded name bytes (length
// octets plus label bytes) in place and returns the same slice. Length
// octets never collide with the ASCII letter ranges Apply0x20 toggles
// (labels are at most 63 bytes, wire compression pointers are excluded
// by construction since this resolver never emits them), so applying
// the bit pattern across the whole encoded name, not just the letters
// within each label, is safe and keeps the position index the
// decoding side would need in sync with how the name was built.
func (k CaseKey) Apply0x20Bytes(b []byte) []byte {
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			if k.bitAt(i) {
				b[i] = c - ('a' - 'A')
			}
		case c >= 'A' && c <= 'Z':
			if k.bitAt(i) {
				b[i] = c + ('a' - 'A')
			}
		}
	}
	return b
}

func (k CaseKey) bitAt(position int) bool {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(position))
	return siphash.Hash(k.k0, k.k1, msg[:])&1 == 1
}

// ValidateCasePreserved reports whether a reply's question name matches
// the exact case pattern sent in the query. A mismatch is a strong
// signal the reply did not originate from the queried server.
func ValidateCasePreserved(queryName, responseName string) bool {
	return queryName == responseName
}

// InBailiwick reports whether name falls under zone: the bailiwick
// check that guards against off-path glue poisoning. A referral's
// additional-section records are only trustworthy for names that are
// actually inside the zone being delegated.
func InBailiwick(name, zone packet.Qname) bool {
	return name.EndsWith(zone)
}

// HardenGlue keeps only additional-section records whose owner name
// matches the host of some NS record in authority. A root or TLD
// delegation routinely glues nameservers that live outside the zone
// being delegated (a.gtld-servers.net glued for "com."), so unlike
// InBailiwick this intentionally does not check the delegated zone at
// all: the only thing that makes a glue record trustworthy is that it
// answers a nameserver the same reply's authority section actually
// named, which is exactly the matching GetResolvedNS already applies
// record by record. HardenGlue does the same filtering up front, over
// the whole additional section, so nothing downstream ever sees glue
// for a name no NS record referenced.
func HardenGlue(additional, authority []packet.Record) []packet.Record {
	nsHosts := make(map[string]struct{}, len(authority))
	for _, rec := range authority {
		if ns, ok := rec.(packet.NSRecord); ok {
			nsHosts[ns.Host.String()] = struct{}{}
		}
	}

	var hardened []packet.Record
	for _, rec := range additional {
		switch rec.(type) {
		case packet.ARecord, packet.AAAARecord:
			if _, ok := nsHosts[rec.Domain().String()]; ok {
				hardened = append(hardened, rec)
			}
		}
	}
	return hardened
}
