package packet

import "encoding/binary"

// MaxMessageSize is the hard 512-byte ceiling on a UDP DNS message. This
// resolver does not implement EDNS(0) or TCP fallback, so 512 bytes is not
// a soft default, it is the only size that is ever valid on the wire.
const MaxMessageSize = 512

const (
	maxCompressionJumps = 5 // RFC-silent but universally enforced; keeps decompression O(1) per name
	maxLabelLength       = 63
	maxQnameWireLength   = 255
)

// Buffer is an immutable, bounds-checked view over one received datagram.
// It never panics on untrusted offsets: every accessor returns
// ErrOutOfBounds instead of indexing past the slice.
type Buffer struct {
	data []byte
}

// NewBuffer wraps a datagram for parsing. It does not copy the slice;
// callers must not mutate data while the Buffer is in use.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Len returns the number of bytes in the underlying message.
func (b *Buffer) Len() int { return len(b.data) }

// PeekByte returns the byte at pos without affecting any cursor.
func (b *Buffer) PeekByte(pos int) (byte, error) {
	if pos < 0 || pos >= len(b.data) {
		return 0, ErrOutOfBounds
	}
	return b.data[pos], nil
}

// PeekRange returns a slice of n bytes starting at start. The returned
// slice aliases the buffer; callers that need to retain it past the
// parse must copy it.
func (b *Buffer) PeekRange(start, n int) ([]byte, error) {
	if start < 0 || n < 0 || start+n > len(b.data) {
		return nil, ErrOutOfBounds
	}
	return b.data[start : start+n], nil
}

func (b *Buffer) peekUint16(pos int) (uint16, error) {
	raw, err := b.PeekRange(pos, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

func (b *Buffer) peekUint32(pos int) (uint32, error) {
	raw, err := b.PeekRange(pos, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

// ReadQname decompresses a domain name starting at cursor. It returns the
// parsed name and the position immediately after the *outer* name's
// encoding: a pointer always terminates the outer cursor two bytes past
// where the pointer started, regardless of how many further jumps the
// decompression performs to resolve the name's continuation.
//
// Loop safety: at most maxCompressionJumps pointer follows are permitted
// per name. A message can still construct a pointer chain that is valid
// (each jump strictly decreasing in offset, per RFC 1035's requirement
// that a pointer only ever refers to a *prior* position) but exceeds the
// limit; such a chain is rejected as ErrJumpLimitExceeded rather than
// walked to completion, which both bounds the work done per name and
// rejects the degenerate "a name points at itself" case outright, since
// a self-pointer is never a prior position relative to itself.
func (b *Buffer) ReadQname(cursor int) (Qname, int, error) {
	var labels []string
	outerEnd := -1
	jumps := 0
	pos := cursor

	for {
		length, err := b.PeekByte(pos)
		if err != nil {
			return Qname{}, 0, err
		}

		if length&0xC0 == 0xC0 {
			if jumps >= maxCompressionJumps {
				return Qname{}, 0, ErrJumpLimitExceeded
			}
			hi, err := b.peekUint16(pos)
			if err != nil {
				return Qname{}, 0, err
			}
			target := int(hi & 0x3FFF)

			if outerEnd < 0 {
				outerEnd = pos + 2
			}
			if target >= pos {
				// A pointer must strictly precede the position it's read
				// from; otherwise a packet can loop without ever repeating
				// an exact offset (e.g. a chain of pointers each jumping
				// one byte forward into the next pointer). Treated as the
				// same jump-limit violation the spec's error taxonomy
				// names, since both are pointer-chain abuse.
				return Qname{}, 0, ErrJumpLimitExceeded
			}

			pos = target
			jumps++
			continue
		}

		if length == 0 {
			pos++
			break
		}

		if int(length) >= maxLabelLength {
			return Qname{}, 0, ErrInvalidQnameLabelLength
		}

		pos++
		raw, err := b.PeekRange(pos, int(length))
		if err != nil {
			return Qname{}, 0, err
		}
		labels = append(labels, lowerASCII(raw))
		pos += int(length)
	}

	if outerEnd < 0 {
		outerEnd = pos
	}

	name, err := NewQnameFromLabels(labels)
	if err != nil {
		return Qname{}, 0, err
	}
	return name, outerEnd, nil
}

func lowerASCII(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
