package packet

import "testing"

func TestNewQname_Basic(t *testing.T) {
	q, err := NewQname("example.com")
	if err != nil {
		t.Fatalf("NewQname() error: %v", err)
	}
	if got, want := q.String(), "example.com."; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNewQname_LowercasesOnConstruction(t *testing.T) {
	q, err := NewQname("WWW.Example.COM")
	if err != nil {
		t.Fatalf("NewQname() error: %v", err)
	}
	if got, want := q.String(), "www.example.com."; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNewQname_Root(t *testing.T) {
	q, err := NewQname(".")
	if err != nil {
		t.Fatalf("NewQname() error: %v", err)
	}
	if !q.Equal(RootQname) {
		t.Errorf("NewQname(\".\") should equal RootQname")
	}
	if got, want := q.String(), "."; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestQname_Equal(t *testing.T) {
	a, _ := NewQname("example.com")
	b, _ := NewQname("EXAMPLE.COM")
	c, _ := NewQname("other.com")

	if !a.Equal(b) {
		t.Error("case-differing names should be equal")
	}
	if a.Equal(c) {
		t.Error("distinct names should not be equal")
	}
}

func TestQname_EndsWith(t *testing.T) {
	www, _ := NewQname("www.example.com")
	example, _ := NewQname("example.com")
	other, _ := NewQname("example.org")

	if !www.EndsWith(example) {
		t.Error("www.example.com. should end with example.com.")
	}
	if www.EndsWith(other) {
		t.Error("www.example.com. should not end with example.org.")
	}
	if !www.EndsWith(www) {
		t.Error("a name should end with itself")
	}
	if example.EndsWith(www) {
		t.Error("a shorter name should not end with a longer one")
	}
}

func TestQname_AppendWireAndWireSize(t *testing.T) {
	q, _ := NewQname("example.com")
	wire := q.AppendWire(nil)

	want := []byte{
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		3, 'c', 'o', 'm',
		0,
	}
	if len(wire) != len(want) {
		t.Fatalf("AppendWire() length = %d, want %d", len(wire), len(want))
	}
	for i := range want {
		if wire[i] != want[i] {
			t.Fatalf("AppendWire()[%d] = %#x, want %#x", i, wire[i], want[i])
		}
	}
	if q.WireSize() != len(want) {
		t.Errorf("WireSize() = %d, want %d", q.WireSize(), len(want))
	}
}

func TestQname_RootWireSize(t *testing.T) {
	if RootQname.WireSize() != 1 {
		t.Errorf("RootQname.WireSize() = %d, want 1", RootQname.WireSize())
	}
	wire := RootQname.AppendWire(nil)
	if len(wire) != 1 || wire[0] != 0 {
		t.Errorf("RootQname.AppendWire() = %v, want [0]", wire)
	}
}

func TestNewQnameFromLabels_RejectsOversizedLabel(t *testing.T) {
	oversized := make([]byte, maxLabelLength)
	for i := range oversized {
		oversized[i] = 'a'
	}
	_, err := NewQnameFromLabels([]string{string(oversized)})
	if err != ErrInvalidQnameLabelLength {
		t.Errorf("error = %v, want ErrInvalidQnameLabelLength", err)
	}
}

func TestNewQnameFromLabels_RejectsOversizedTotal(t *testing.T) {
	label := make([]byte, 60)
	for i := range label {
		label[i] = 'a'
	}
	var labels []string
	for i := 0; i < 5; i++ {
		labels = append(labels, string(label))
	}
	_, err := NewQnameFromLabels(labels)
	if err != ErrInvalidQnameTotalLength {
		t.Errorf("error = %v, want ErrInvalidQnameTotalLength", err)
	}
}

func TestNewQnameFromLabels_RejectsEmptyLabel(t *testing.T) {
	_, err := NewQnameFromLabels([]string{"example", ""})
	if err != ErrInvalidQnameLabelLength {
		t.Errorf("error = %v, want ErrInvalidQnameLabelLength", err)
	}
}
