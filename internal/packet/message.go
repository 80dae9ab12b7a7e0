package packet

// Message is a fully decoded DNS message: header plus the four
// variable-length sections. Questions is always at most one entry in
// practice (this resolver only ever sends and forwards single-question
// messages) but is kept as a slice to mirror the wire format exactly.
type Message struct {
	Header     Header
	Questions  []Question
	Answers    []Record
	Authority  []Record
	Additional []Record
}

// NewQueryMessage builds a minimal outgoing query: RD set, a single
// question, an ID the caller has already chosen (e.g. via
// internal/random), and every count field consistent with the sections
// present.
func NewQueryMessage(id uint16, q Question) Message {
	return Message{
		Header: Header{
			ID: id,
			Flags: HeaderFlags{
				RecursionDesired: true,
			},
			QDCount: 1,
		},
		Questions: []Question{q},
	}
}

// Parse decodes a complete message from buf. Section record counts in
// the header are treated as untrusted: a count claiming more records
// than could possibly fit in the remaining bytes (each record's
// smallest possible wire form is 11 bytes: a root name, type, class,
// ttl, and a zero rdlength) is rejected outright rather than used to
// drive a read loop that could be tricked into running far longer than
// the message justifies.
func Parse(data []byte) (Message, error) {
	buf := NewBuffer(data)

	header, err := ParseHeader(buf)
	if err != nil {
		return Message{}, err
	}

	const minRecordSize = 11
	maxPlausibleRecords := buf.Len() / minRecordSize
	if int(header.QDCount) > buf.Len() || int(header.ANCount) > maxPlausibleRecords ||
		int(header.NSCount) > maxPlausibleRecords || int(header.ARCount) > maxPlausibleRecords {
		return Message{}, ErrTooManyRecords
	}

	cursor := headerSize
	msg := Message{Header: header}

	for i := uint16(0); i < header.QDCount; i++ {
		q, next, err := ParseQuestion(buf, cursor)
		if err != nil {
			return Message{}, err
		}
		msg.Questions = append(msg.Questions, q)
		cursor = next
	}

	msg.Answers, cursor, err = parseRecords(buf, cursor, header.ANCount)
	if err != nil {
		return Message{}, err
	}
	msg.Authority, cursor, err = parseRecords(buf, cursor, header.NSCount)
	if err != nil {
		return Message{}, err
	}
	msg.Additional, cursor, err = parseRecords(buf, cursor, header.ARCount)
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

func parseRecords(buf *Buffer, cursor int, count uint16) ([]Record, int, error) {
	recs := make([]Record, 0, count)
	for i := uint16(0); i < count; i++ {
		rec, next, err := ParseRecord(buf, cursor)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
		cursor = next
	}
	return recs, cursor, nil
}

// Emit serializes the message. Header counts are recomputed from the
// actual section contents rather than trusted from m.Header, since
// UnknownRecord entries silently drop out of their section during
// emission (see Record.Emit) and the wire counts must track that.
func (m Message) Emit() []byte {
	var answers, authority, additional [][]byte
	answers, ancount := emitSection(m.Answers)
	authority, nscount := emitSection(m.Authority)
	additional, arcount := emitSection(m.Additional)

	h := m.Header
	h.QDCount = uint16(len(m.Questions))
	h.ANCount = ancount
	h.NSCount = nscount
	h.ARCount = arcount

	out := h.Emit()
	for _, q := range m.Questions {
		out = append(out, q.Emit()...)
	}
	for _, rec := range answers {
		out = append(out, rec...)
	}
	for _, rec := range authority {
		out = append(out, rec...)
	}
	for _, rec := range additional {
		out = append(out, rec...)
	}
	return out
}

func emitSection(recs []Record) ([][]byte, uint16) {
	out := make([][]byte, 0, len(recs))
	var count uint16
	for _, rec := range recs {
		buf, ok := rec.Emit(nil)
		if !ok {
			continue
		}
		out = append(out, buf)
		count++
	}
	return out, count
}

// GetRandomA returns a uniformly random A or AAAA record from the
// answer section, or false if none is present. The resolver uses this
// to pick among multiple address records for round-robin-style load
// spreading, per internal/random.
func (m Message) GetRandomA(pick func(n int) int) (Record, bool) {
	var addrs []Record
	for _, rec := range m.Answers {
		switch rec.(type) {
		case ARecord, AAAARecord:
			addrs = append(addrs, rec)
		}
	}
	if len(addrs) == 0 {
		return nil, false
	}
	return addrs[pick(len(addrs))], true
}

// GetResolvedNS returns a uniformly random nameserver address for a
// zone that domain ends in, found via an NS record in authority (whose
// owner name is a suffix of domain) paired with a matching glue A/AAAA
// record in additional. This is the
// "referral with glue" case: no further resolution is required before
// querying the nameserver.
func (m Message) GetResolvedNS(domain Qname, pick func(n int) int) (Record, bool) {
	var candidates []Record
	for _, ns := range m.Authority {
		nsRec, ok := ns.(NSRecord)
		if !ok || !domain.EndsWith(nsRec.Domain()) {
			continue
		}
		for _, add := range m.Additional {
			switch a := add.(type) {
			case ARecord:
				if a.Domain().Equal(nsRec.Host) {
					candidates = append(candidates, a)
				}
			case AAAARecord:
				if a.Domain().Equal(nsRec.Host) {
					candidates = append(candidates, a)
				}
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[pick(len(candidates))], true
}

// GetUnresolvedNS returns the host name of some nameserver named in
// authority for domain that has no matching glue record in additional.
// This is the "referral without glue" case: the caller must separately
// resolve this host's address before it can query the nameserver.
func (m Message) GetUnresolvedNS(domain Qname) (Qname, bool) {
	for _, ns := range m.Authority {
		nsRec, ok := ns.(NSRecord)
		if !ok || !domain.EndsWith(nsRec.Domain()) {
			continue
		}
		if m.hasGlue(nsRec.Host) {
			continue
		}
		return nsRec.Host, true
	}
	return Qname{}, false
}

func (m Message) hasGlue(host Qname) bool {
	for _, add := range m.Additional {
		switch a := add.(type) {
		case ARecord:
			if a.Domain().Equal(host) {
				return true
			}
		case AAAARecord:
			if a.Domain().Equal(host) {
				return true
			}
		}
	}
	return false
}
