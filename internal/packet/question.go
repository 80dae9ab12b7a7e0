package packet

import "encoding/binary"

// QueryType is the 16-bit QTYPE/TYPE field. Round-tripping through
// Uint16/queryTypeFromUint16 is the identity for every value, including
// ones this resolver doesn't otherwise understand (they report
// IsUnknown() == true and carry their original wire value along).
type QueryType struct {
	value uint16
}

var (
	TypeA     = QueryType{1}
	TypeNS    = QueryType{2}
	TypeCNAME = QueryType{5}
	TypeSOA   = QueryType{6}
	TypeMX    = QueryType{15}
	TypeAAAA  = QueryType{28}
)

func queryTypeFromUint16(v uint16) QueryType { return QueryType{v} }

// Uint16 returns the wire value of the query type.
func (t QueryType) Uint16() uint16 { return t.value }

// IsUnknown reports whether t is anything other than the named types
// this resolver decodes structurally.
func (t QueryType) IsUnknown() bool {
	switch t.value {
	case TypeA.value, TypeNS.value, TypeCNAME.value, TypeSOA.value, TypeMX.value, TypeAAAA.value:
		return false
	default:
		return true
	}
}

func (t QueryType) String() string {
	switch t.value {
	case TypeA.value:
		return "A"
	case TypeNS.value:
		return "NS"
	case TypeCNAME.value:
		return "CNAME"
	case TypeSOA.value:
		return "SOA"
	case TypeMX.value:
		return "MX"
	case TypeAAAA.value:
		return "AAAA"
	default:
		return "UNKNOWN"
	}
}

const classIN = 1

// Question is one entry of the question section: a name, a query type,
// and an implicit class, which this resolver only ever sends or accepts
// as IN.
type Question struct {
	Name Qname
	Type QueryType
}

// ParseQuestion reads a question starting at cursor and returns the
// position immediately following it. A qclass other than IN is a hard
// structural failure, not a silent default.
func ParseQuestion(buf *Buffer, cursor int) (Question, int, error) {
	name, cursor, err := buf.ReadQname(cursor)
	if err != nil {
		return Question{}, 0, err
	}

	raw, err := buf.PeekRange(cursor, 4)
	if err != nil {
		return Question{}, 0, err
	}
	qtype := binary.BigEndian.Uint16(raw[0:2])
	qclass := binary.BigEndian.Uint16(raw[2:4])
	if qclass != classIN {
		return Question{}, 0, &BadClassError{Class: qclass}
	}

	return Question{Name: name, Type: queryTypeFromUint16(qtype)}, cursor + 4, nil
}

// Emit serializes the question, always writing class IN.
func (q Question) Emit() []byte {
	out := q.Name.AppendWire(nil)
	out = binary.BigEndian.AppendUint16(out, q.Type.Uint16())
	out = binary.BigEndian.AppendUint16(out, classIN)
	return out
}
