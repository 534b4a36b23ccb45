package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Uint8(0xAB)
	w.Bool(true)
	w.Uint16(0x1234)
	w.Uint32(0xDEADBEEF)
	w.Uint64(0x0102030405060708)
	w.Int64(-1)
	w.Float64(3.5)
	w.Buffer([]byte{1, 2, 3})
	w.QBuffer([]byte{4, 5})
	w.String("hello")

	r := NewReader(w.Bytes())

	if v, err := r.Uint8(); err != nil || v != 0xAB {
		t.Fatalf("Uint8 = %v, %v", v, err)
	}
	if v, err := r.Bool(); err != nil || v != true {
		t.Fatalf("Bool = %v, %v", v, err)
	}
	if v, err := r.Uint16(); err != nil || v != 0x1234 {
		t.Fatalf("Uint16 = %v, %v", v, err)
	}
	if v, err := r.Uint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("Uint32 = %v, %v", v, err)
	}
	if v, err := r.Uint64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("Uint64 = %v, %v", v, err)
	}
	if v, err := r.Int64(); err != nil || v != -1 {
		t.Fatalf("Int64 = %v, %v", v, err)
	}
	if v, err := r.Float64(); err != nil || v != 3.5 {
		t.Fatalf("Float64 = %v, %v", v, err)
	}
	if v, err := r.Buffer(); err != nil || !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Fatalf("Buffer = %v, %v", v, err)
	}
	if v, err := r.QBuffer(); err != nil || !bytes.Equal(v, []byte{4, 5}) {
		t.Fatalf("QBuffer = %v, %v", v, err)
	}
	if v, err := r.String(); err != nil || v != "hello" {
		t.Fatalf("String = %q, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
	}
}

func TestStringFraming(t *testing.T) {
	w := NewWriter()
	w.String("ab")
	got := w.Bytes()
	// length (3, includes NUL) + "ab" + NUL
	want := []byte{3, 0, 'a', 'b', 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("String() wire bytes = %x, want %x", got, want)
	}
}

func TestShortReadNeverPanics(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{1},
		{0xFF, 0xFF},
		{0xFF, 0xFF, 0xFF, 0xFF},
	}
	for _, c := range cases {
		r := NewReader(c)
		if _, err := r.Uint64(); err == nil {
			t.Errorf("Uint64() on %x: expected error", c)
		}
		r = NewReader(c)
		if _, err := r.Buffer(); err == nil {
			t.Errorf("Buffer() on %x: expected error", c)
		}
		r = NewReader(c)
		if _, err := r.String(); err == nil {
			t.Errorf("String() on %x: expected error", c)
		}
		r = NewReader(c)
		if _, err := r.ReadVariant(); err == nil {
			t.Errorf("ReadVariant() on %x: expected error", c)
		}
	}
}

func TestQListRoundTrip(t *testing.T) {
	w := NewWriter()
	WriteQList(w, []uint32{1, 2, 3}, (*Writer).Uint32)

	r := NewReader(w.Bytes())
	got, err := ReadQList(r, (*Reader).Uint32)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []uint32{1, 2, 3}) {
		t.Fatalf("QList round trip = %v", got)
	}
}

func TestVariantRoundTrip(t *testing.T) {
	vs := []Variant{
		NewVariantInt64(-42),
		NewVariantDouble(1.25),
		NewVariantBool(true),
		NewVariantString("variant"),
		NewVariantDateTime(NewDateTime(2023, 6, 15, 12, 30, 45)),
		NewVariantUint64(1 << 40),
		NewVariantQList([]Variant{NewVariantInt64(1), NewVariantBool(false)}),
	}
	for _, v := range vs {
		w := NewWriter()
		w.WriteVariant(v)

		r := NewReader(w.Bytes())
		got, err := r.ReadVariant()
		if err != nil {
			t.Fatalf("kind %d: %v", v.Kind, err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("kind %d: round trip = %+v, want %+v", v.Kind, got, v)
		}
	}
}

func TestVariantUnknownTag(t *testing.T) {
	r := NewReader([]byte{0x99})
	if _, err := r.ReadVariant(); err != ErrUnknownVariantTag {
		t.Fatalf("expected ErrUnknownVariantTag, got %v", err)
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	d := NewDateTime(2024, 3, 9, 23, 59, 1)
	if d.Year() != 2024 || d.Month() != 3 || d.Day() != 9 || d.Hour() != 23 || d.Minute() != 59 || d.Second() != 1 {
		t.Fatalf("unpacked fields wrong: %+v", d)
	}

	w := NewWriter()
	w.WriteDateTime(d)
	r := NewReader(w.Bytes())
	got, err := r.ReadDateTime()
	if err != nil || got != d {
		t.Fatalf("DateTime round trip = %v, %v", got, err)
	}
}

func TestStationURLRoundTrip(t *testing.T) {
	s := NewStationURL("prudps")
	s.Set("address", "1.2.3.4")
	s.Set("port", "21171")
	s.Set("PID", "2")

	str := s.String()
	parsed := ParseStationURL(str)
	if parsed.Scheme != "prudps" || parsed.Address() != "1.2.3.4" || parsed.Port() != 21171 {
		t.Fatalf("ParseStationURL(%q) = %+v", str, parsed)
	}

	w := NewWriter()
	w.WriteStationURL(s)
	r := NewReader(w.Bytes())
	got, err := r.ReadStationURL()
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != s.String() {
		t.Fatalf("StationURL wire round trip = %q, want %q", got.String(), s.String())
	}
}

func TestStationURLTolerant(t *testing.T) {
	s := ParseStationURL("prudp:/address=1.2.3.4;garbage;port=1")
	if s.Address() != "1.2.3.4" || s.Port() != 1 {
		t.Fatalf("unexpected parse: %+v", s)
	}
}
