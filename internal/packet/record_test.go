package packet

import (
	"encoding/binary"
	"net/netip"
	"testing"
)

func TestParseRecord_A(t *testing.T) {
	name, _ := NewQname("example.com")
	msg := name.AppendWire(nil)
	msg = binary.BigEndian.AppendUint16(msg, TypeA.Uint16())
	msg = binary.BigEndian.AppendUint16(msg, classIN)
	msg = binary.BigEndian.AppendUint32(msg, 300)
	msg = binary.BigEndian.AppendUint16(msg, 4)
	msg = append(msg, 93, 184, 216, 34)

	buf := NewBuffer(msg)
	rec, next, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	if next != len(msg) {
		t.Errorf("next = %d, want %d", next, len(msg))
	}
	a, ok := rec.(ARecord)
	if !ok {
		t.Fatalf("record type = %T, want ARecord", rec)
	}
	if want := netip.AddrFrom4([4]byte{93, 184, 216, 34}); a.Addr != want {
		t.Errorf("Addr = %v, want %v", a.Addr, want)
	}
	if a.TTL() != 300 {
		t.Errorf("TTL = %d, want 300", a.TTL())
	}
	if !a.Domain().Equal(name) {
		t.Errorf("Domain = %v, want %v", a.Domain(), name)
	}
}

func TestRecord_A_EmitRoundTrip(t *testing.T) {
	name, _ := NewQname("example.com")
	rec := ARecord{
		recordHeader: recordHeader{domain: name, ttl: 3600},
		Addr:         netip.AddrFrom4([4]byte{1, 2, 3, 4}),
	}
	wire, ok := rec.Emit(nil)
	if !ok {
		t.Fatal("A record Emit() should report ok=true")
	}

	buf := NewBuffer(wire)
	parsed, next, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	if next != len(wire) {
		t.Errorf("next = %d, want %d", next, len(wire))
	}
	got := parsed.(ARecord)
	if got.Addr != rec.Addr || got.TTL() != rec.TTL() || !got.Domain().Equal(name) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestRecord_AAAA_EmitRoundTrip(t *testing.T) {
	name, _ := NewQname("example.com")
	addr := netip.MustParseAddr("2001:db8::1")
	rec := AAAARecord{recordHeader: recordHeader{domain: name, ttl: 60}, Addr: addr}

	wire, ok := rec.Emit(nil)
	if !ok {
		t.Fatal("AAAA record Emit() should report ok=true")
	}
	buf := NewBuffer(wire)
	parsed, _, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	got := parsed.(AAAARecord)
	if got.Addr != addr {
		t.Errorf("Addr = %v, want %v", got.Addr, addr)
	}
}

func TestRecord_NS_EmitRoundTrip(t *testing.T) {
	domain, _ := NewQname("example.com")
	host, _ := NewQname("ns1.example.com")
	rec := NSRecord{recordHeader: recordHeader{domain: domain, ttl: 172800}, Host: host}

	wire, ok := rec.Emit(nil)
	if !ok {
		t.Fatal("NS record Emit() should report ok=true")
	}
	buf := NewBuffer(wire)
	parsed, next, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	if next != len(wire) {
		t.Errorf("next = %d, want %d", next, len(wire))
	}
	got := parsed.(NSRecord)
	if !got.Host.Equal(host) {
		t.Errorf("Host = %v, want %v", got.Host, host)
	}
}

func TestRecord_CNAME_EmitRoundTrip(t *testing.T) {
	domain, _ := NewQname("www.example.com")
	host, _ := NewQname("example.com")
	rec := CNAMERecord{recordHeader: recordHeader{domain: domain, ttl: 300}, Host: host}

	wire, _ := rec.Emit(nil)
	buf := NewBuffer(wire)
	parsed, _, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	got := parsed.(CNAMERecord)
	if !got.Host.Equal(host) {
		t.Errorf("Host = %v, want %v", got.Host, host)
	}
}

func TestRecord_MX_EmitRoundTrip(t *testing.T) {
	domain, _ := NewQname("example.com")
	host, _ := NewQname("mail.example.com")
	rec := MXRecord{
		recordHeader: recordHeader{domain: domain, ttl: 3600},
		Priority:     10,
		Host:         host,
	}

	wire, _ := rec.Emit(nil)
	buf := NewBuffer(wire)
	parsed, next, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	if next != len(wire) {
		t.Errorf("next = %d, want %d", next, len(wire))
	}
	got := parsed.(MXRecord)
	if got.Priority != 10 {
		t.Errorf("Priority = %d, want 10", got.Priority)
	}
	if !got.Host.Equal(host) {
		t.Errorf("Host = %v, want %v", got.Host, host)
	}
}

func TestRecord_SOA_EmitRoundTrip(t *testing.T) {
	domain, _ := NewQname("example.com")
	primaryNS, _ := NewQname("ns1.example.com")
	email, _ := NewQname("hostmaster.example.com")
	rec := SOARecord{
		recordHeader: recordHeader{domain: domain, ttl: 3600},
		PrimaryNS:    primaryNS,
		Email:        email,
		Serial:       2024010100,
		Refresh:      7200,
		Retry:        3600,
		Expire:       1209600,
		MinTTL:       300,
	}

	wire, _ := rec.Emit(nil)
	buf := NewBuffer(wire)
	parsed, next, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	if next != len(wire) {
		t.Errorf("next = %d, want %d", next, len(wire))
	}
	got := parsed.(SOARecord)
	if !got.Domain().Equal(rec.Domain()) || !got.PrimaryNS.Equal(rec.PrimaryNS) || !got.Email.Equal(rec.Email) ||
		got.Serial != rec.Serial || got.Refresh != rec.Refresh || got.Retry != rec.Retry ||
		got.Expire != rec.Expire || got.MinTTL != rec.MinTTL {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestRecord_Unknown_ParsedAndSkippedOnEmit(t *testing.T) {
	name, _ := NewQname("example.com")
	msg := name.AppendWire(nil)
	msg = binary.BigEndian.AppendUint16(msg, 99) // unrecognized type
	msg = binary.BigEndian.AppendUint16(msg, classIN)
	msg = binary.BigEndian.AppendUint32(msg, 60)
	msg = binary.BigEndian.AppendUint16(msg, 3)
	msg = append(msg, 0xDE, 0xAD, 0xBE)

	buf := NewBuffer(msg)
	rec, next, err := ParseRecord(buf, 0)
	if err != nil {
		t.Fatalf("ParseRecord() error: %v", err)
	}
	if next != len(msg) {
		t.Errorf("next = %d, want %d", next, len(msg))
	}
	unk, ok := rec.(UnknownRecord)
	if !ok {
		t.Fatalf("record type = %T, want UnknownRecord", rec)
	}
	if unk.DataLen != 3 {
		t.Errorf("DataLen = %d, want 3", unk.DataLen)
	}

	out, emitOK := unk.Emit(nil)
	if emitOK {
		t.Error("UnknownRecord.Emit() should report ok=false")
	}
	if len(out) != 0 {
		t.Errorf("UnknownRecord.Emit() should not append any bytes, got %v", out)
	}
}

func TestParseRecord_UnknownTruncatedRdataRejected(t *testing.T) {
	name, _ := NewQname("example.com")
	msg := name.AppendWire(nil)
	msg = binary.BigEndian.AppendUint16(msg, 99)
	msg = binary.BigEndian.AppendUint16(msg, classIN)
	msg = binary.BigEndian.AppendUint32(msg, 60)
	msg = binary.BigEndian.AppendUint16(msg, 10) // claims 10 bytes rdata, none present

	buf := NewBuffer(msg)
	_, _, err := ParseRecord(buf, 0)
	if err != ErrOutOfBounds {
		t.Errorf("error = %v, want ErrOutOfBounds", err)
	}
}
