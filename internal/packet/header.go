package packet

import "encoding/binary"

// ResultCode is the 4-bit RCODE field. Any wire value this enumeration
// doesn't name collapses to NoError on parse: the upstream source this
// behavior is modeled on does the same, and RFC 1035's own base set only
// goes up to 5 anyway (6..15 were reserved for later extensions this
// resolver doesn't implement).
type ResultCode uint8

const (
	NoError  ResultCode = 0
	FormErr  ResultCode = 1
	ServFail ResultCode = 2
	NxDomain ResultCode = 3
	NotImp   ResultCode = 4
	Refused  ResultCode = 5
)

func resultCodeFromBits(v uint8) ResultCode {
	switch v {
	case 1, 2, 3, 4, 5:
		return ResultCode(v)
	default:
		return NoError
	}
}

func (r ResultCode) String() string {
	switch r {
	case NoError:
		return "NOERROR"
	case FormErr:
		return "FORMERR"
	case ServFail:
		return "SERVFAIL"
	case NxDomain:
		return "NXDOMAIN"
	case NotImp:
		return "NOTIMP"
	case Refused:
		return "REFUSED"
	default:
		return "NOERROR"
	}
}

// HeaderFlags is the pair of octets following the transaction ID.
type HeaderFlags struct {
	Response            bool
	Opcode              uint8 // 4 bits
	AuthoritativeAnswer bool
	TruncatedMessage    bool
	RecursionDesired    bool
	RecursionAvailable  bool
	Z                   bool // reserved
	AuthedData          bool
	CheckingDisabled    bool
	Rescode             ResultCode
}

func parseHeaderFlags(b1, b2 byte) HeaderFlags {
	r1 := newBitReader(b1)
	var f HeaderFlags
	f.Response = r1.readBit()
	f.Opcode = r1.readBits(4)
	f.AuthoritativeAnswer = r1.readBit()
	f.TruncatedMessage = r1.readBit()
	f.RecursionDesired = r1.readBit()

	r2 := newBitReader(b2)
	f.RecursionAvailable = r2.readBit()
	f.Z = r2.readBit()
	f.AuthedData = r2.readBit()
	f.CheckingDisabled = r2.readBit()
	f.Rescode = resultCodeFromBits(r2.readBits(4))
	return f
}

func (f HeaderFlags) emit() [2]byte {
	var w1, w2 bitWriter
	w1.writeBits(b2u(f.Response), 1)
	w1.writeBits(f.Opcode, 4)
	w1.writeBits(b2u(f.AuthoritativeAnswer), 1)
	w1.writeBits(b2u(f.TruncatedMessage), 1)
	w1.writeBits(b2u(f.RecursionDesired), 1)

	w2.writeBits(b2u(f.RecursionAvailable), 1)
	w2.writeBits(b2u(f.Z), 1)
	w2.writeBits(b2u(f.AuthedData), 1)
	w2.writeBits(b2u(f.CheckingDisabled), 1)
	w2.writeBits(uint8(f.Rescode), 4)

	b1 := w1.flush()
	b2 := w2.flush()
	return [2]byte{b1[0], b2[0]}
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

const headerSize = 12

// HeaderSize is the fixed wire size of a DNS message header in bytes.
// Exported for callers that need to locate the first question's byte
// offset without parsing the header, such as the resolver's 0x20
// case-randomization pass over an already-serialized query.
const HeaderSize = headerSize

// Header is the fixed 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   HeaderFlags
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// ParseHeader reads the 12-byte header starting at offset 0. DNS
// messages always begin with the header, so there is no cursor
// parameter; Parse relies on this.
func ParseHeader(buf *Buffer) (Header, error) {
	if buf.Len() < headerSize {
		return Header{}, ErrMessageTooShort
	}

	var h Header
	id, err := buf.peekUint16(0)
	if err != nil {
		return Header{}, err
	}
	h.ID = id

	b1, err := buf.PeekByte(2)
	if err != nil {
		return Header{}, err
	}
	b2, err := buf.PeekByte(3)
	if err != nil {
		return Header{}, err
	}
	h.Flags = parseHeaderFlags(b1, b2)
	if h.Flags.Z {
		// RFC 1035 4.1.1 reserves this bit and requires it be zero on
		// the wire; a message that sets it is not just "unknown", it
		// contradicts a fixed bit pattern the format guarantees.
		return Header{}, ErrBitPatternMismatch
	}

	qd, err := buf.peekUint16(4)
	if err != nil {
		return Header{}, err
	}
	an, err := buf.peekUint16(6)
	if err != nil {
		return Header{}, err
	}
	ns, err := buf.peekUint16(8)
	if err != nil {
		return Header{}, err
	}
	ar, err := buf.peekUint16(10)
	if err != nil {
		return Header{}, err
	}
	h.QDCount, h.ANCount, h.NSCount, h.ARCount = qd, an, ns, ar

	return h, nil
}

// Emit serializes the header to its 12-byte wire form.
func (h Header) Emit() []byte {
	out := make([]byte, 0, headerSize)
	out = binary.BigEndian.AppendUint16(out, h.ID)
	flagBytes := h.Flags.emit()
	out = append(out, flagBytes[0], flagBytes[1])
	out = binary.BigEndian.AppendUint16(out, h.QDCount)
	out = binary.BigEndian.AppendUint16(out, h.ANCount)
	out = binary.BigEndian.AppendUint16(out, h.NSCount)
	out = binary.BigEndian.AppendUint16(out, h.ARCount)
	return out
}
