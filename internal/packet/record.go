package packet

import (
	"encoding/binary"
	"net/netip"
)

// Record is the common interface satisfied by every resource record
// type this resolver understands. It is a closed tagged union in
// spirit (see the concrete types below); Go expresses that as an
// interface plus a type switch rather than dynamic dispatch.
type Record interface {
	Domain() Qname
	Type() QueryType
	TTL() uint32

	// Emit appends this record's wire form to buf. ok is false for
	// UnknownRecord, which this resolver never re-emits: the caller
	// must drop the record from the outgoing section (and from the
	// section's count) rather than append anything.
	Emit(buf []byte) (out []byte, ok bool)
}

type recordHeader struct {
	domain Qname
	ttl    uint32
}

func (h recordHeader) Domain() Qname { return h.domain }
func (h recordHeader) TTL() uint32   { return h.ttl }

// ARecord is a 4-byte IPv4 address record.
type ARecord struct {
	recordHeader
	Addr netip.Addr
}

func (ARecord) Type() QueryType { return TypeA }

func (r ARecord) Emit(buf []byte) ([]byte, bool) {
	buf = r.domain.AppendWire(buf)
	buf = binary.BigEndian.AppendUint16(buf, TypeA.Uint16())
	buf = binary.BigEndian.AppendUint16(buf, classIN)
	buf = binary.BigEndian.AppendUint32(buf, r.ttl)
	buf = binary.BigEndian.AppendUint16(buf, 4)
	octets := r.Addr.As4()
	return append(buf, octets[:]...), true
}

// AAAARecord is a 16-byte IPv6 address record.
type AAAARecord struct {
	recordHeader
	Addr netip.Addr
}

func (AAAARecord) Type() QueryType { return TypeAAAA }

func (r AAAARecord) Emit(buf []byte) ([]byte, bool) {
	buf = r.domain.AppendWire(buf)
	buf = binary.BigEndian.AppendUint16(buf, TypeAAAA.Uint16())
	buf = binary.BigEndian.AppendUint16(buf, classIN)
	buf = binary.BigEndian.AppendUint32(buf, r.ttl)
	buf = binary.BigEndian.AppendUint16(buf, 16)
	octets := r.Addr.As16()
	return append(buf, octets[:]...), true
}

// NSRecord delegates authority for Domain to Host.
type NSRecord struct {
	recordHeader
	Host Qname
}

func (NSRecord) Type() QueryType { return TypeNS }

func (r NSRecord) Emit(buf []byte) ([]byte, bool) {
	return emitWithQnameRdata(buf, r.domain, TypeNS, r.ttl, r.Host), true
}

// CNAMERecord aliases Domain to Host.
type CNAMERecord struct {
	recordHeader
	Host Qname
}

func (CNAMERecord) Type() QueryType { return TypeCNAME }

func (r CNAMERecord) Emit(buf []byte) ([]byte, bool) {
	return emitWithQnameRdata(buf, r.domain, TypeCNAME, r.ttl, r.Host), true
}

// MXRecord names a mail exchange Host at a given Priority.
type MXRecord struct {
	recordHeader
	Priority uint16
	Host     Qname
}

func (MXRecord) Type() QueryType { return TypeMX }

func (r MXRecord) Emit(buf []byte) ([]byte, bool) {
	buf = r.domain.AppendWire(buf)
	buf = binary.BigEndian.AppendUint16(buf, TypeMX.Uint16())
	buf = binary.BigEndian.AppendUint16(buf, classIN)
	buf = binary.BigEndian.AppendUint32(buf, r.ttl)
	rdlength := 2 + r.Host.WireSize()
	buf = binary.BigEndian.AppendUint16(buf, uint16(rdlength))
	buf = binary.BigEndian.AppendUint16(buf, r.Priority)
	buf = r.Host.AppendWire(buf)
	return buf, true
}

// SOARecord describes a zone's start of authority.
type SOARecord struct {
	recordHeader
	PrimaryNS Qname
	Email     Qname
	Serial    uint32
	Refresh   uint32
	Retry     uint32
	Expire    uint32
	MinTTL    uint32
}

func (SOARecord) Type() QueryType { return TypeSOA }

func (r SOARecord) Emit(buf []byte) ([]byte, bool) {
	buf = r.domain.AppendWire(buf)
	buf = binary.BigEndian.AppendUint16(buf, TypeSOA.Uint16())
	buf = binary.BigEndian.AppendUint16(buf, classIN)
	buf = binary.BigEndian.AppendUint32(buf, r.ttl)
	rdlength := r.PrimaryNS.WireSize() + r.Email.WireSize() + 4*5
	buf = binary.BigEndian.AppendUint16(buf, uint16(rdlength))
	buf = r.PrimaryNS.AppendWire(buf)
	buf = r.Email.AppendWire(buf)
	buf = binary.BigEndian.AppendUint32(buf, r.Serial)
	buf = binary.BigEndian.AppendUint32(buf, r.Refresh)
	buf = binary.BigEndian.AppendUint32(buf, r.Retry)
	buf = binary.BigEndian.AppendUint32(buf, r.Expire)
	buf = binary.BigEndian.AppendUint32(buf, r.MinTTL)
	return buf, true
}

// UnknownRecord carries an unrecognized record type through the
// answer/authority/additional sections so referral and glue logic can
// still see its name, but this resolver never re-emits it: Emit always
// reports ok=false, and callers must drop it (and its section count)
// when building an outgoing message.
type UnknownRecord struct {
	recordHeader
	QType   QueryType
	DataLen uint16
}

func (r UnknownRecord) Type() QueryType { return r.QType }

func (r UnknownRecord) Emit(buf []byte) ([]byte, bool) { return buf, false }

func emitWithQnameRdata(buf []byte, domain Qname, qtype QueryType, ttl uint32, host Qname) []byte {
	buf = domain.AppendWire(buf)
	buf = binary.BigEndian.AppendUint16(buf, qtype.Uint16())
	buf = binary.BigEndian.AppendUint16(buf, classIN)
	buf = binary.BigEndian.AppendUint32(buf, ttl)
	buf = binary.BigEndian.AppendUint16(buf, uint16(host.WireSize()))
	return host.AppendWire(buf)
}

// ParseRecord reads one resource record starting at cursor and returns
// the position immediately following its rdata.
func ParseRecord(buf *Buffer, cursor int) (Record, int, error) {
	domain, cursor, err := buf.ReadQname(cursor)
	if err != nil {
		return nil, 0, err
	}

	head, err := buf.PeekRange(cursor, 10)
	if err != nil {
		return nil, 0, err
	}
	qtypeNum := binary.BigEndian.Uint16(head[0:2])
	// class, head[2:4], is always 1 on the wire and is not validated on
	// read for records (only questions enforce IN), per spec.
	ttl := binary.BigEndian.Uint32(head[4:8])
	rdlength := binary.BigEndian.Uint16(head[8:10])
	cursor += 10

	qtype := queryTypeFromUint16(qtypeNum)
	hdr := recordHeader{domain: domain, ttl: ttl}

	switch qtype {
	case TypeA:
		raw, err := buf.PeekRange(cursor, 4)
		if err != nil {
			return nil, 0, err
		}
		addr := netip.AddrFrom4([4]byte(raw))
		return ARecord{recordHeader: hdr, Addr: addr}, cursor + 4, nil

	case TypeAAAA:
		raw, err := buf.PeekRange(cursor, 16)
		if err != nil {
			return nil, 0, err
		}
		addr := netip.AddrFrom16([16]byte(raw))
		return AAAARecord{recordHeader: hdr, Addr: addr}, cursor + 16, nil

	case TypeNS:
		host, next, err := buf.ReadQname(cursor)
		if err != nil {
			return nil, 0, err
		}
		return NSRecord{recordHeader: hdr, Host: host}, next, nil

	case TypeCNAME:
		host, next, err := buf.ReadQname(cursor)
		if err != nil {
			return nil, 0, err
		}
		return CNAMERecord{recordHeader: hdr, Host: host}, next, nil

	case TypeMX:
		raw, err := buf.PeekRange(cursor, 2)
		if err != nil {
			return nil, 0, err
		}
		priority := binary.BigEndian.Uint16(raw)
		host, next, err := buf.ReadQname(cursor + 2)
		if err != nil {
			return nil, 0, err
		}
		return MXRecord{recordHeader: hdr, Priority: priority, Host: host}, next, nil

	case TypeSOA:
		primaryNS, next, err := buf.ReadQname(cursor)
		if err != nil {
			return nil, 0, err
		}
		email, next2, err := buf.ReadQname(next)
		if err != nil {
			return nil, 0, err
		}
		fields, err := buf.PeekRange(next2, 20)
		if err != nil {
			return nil, 0, err
		}
		return SOARecord{
			recordHeader: hdr,
			PrimaryNS:    primaryNS,
			Email:        email,
			Serial:       binary.BigEndian.Uint32(fields[0:4]),
			Refresh:      binary.BigEndian.Uint32(fields[4:8]),
			Retry:        binary.BigEndian.Uint32(fields[8:12]),
			Expire:       binary.BigEndian.Uint32(fields[12:16]),
			MinTTL:       binary.BigEndian.Uint32(fields[16:20]),
		}, next2 + 20, nil

	default:
		if cursor+int(rdlength) > buf.Len() {
			return nil, 0, ErrOutOfBounds
		}
		return UnknownRecord{recordHeader: hdr, QType: qtype, DataLen: rdlength}, cursor + int(rdlength), nil
	}
}
