package wire

import (
	"encoding/binary"
	"math"
)

// Writer appends little-endian PRUDP/RMC wire values to an internal buffer.
// The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer. The caller must not modify it.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

// Bool appends a one-byte boolean.
func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}

// Uint16 appends a little-endian uint16.
func (w *Writer) Uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// Uint32 appends a little-endian uint32.
func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Uint64 appends a little-endian uint64.
func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Int64 appends a little-endian int64.
func (w *Writer) Int64(v int64) {
	w.Uint64(uint64(v))
}

// Float64 appends a little-endian IEEE-754 double.
func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// RawBytes appends raw bytes with no framing.
func (w *Writer) RawBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Buffer appends a u32-length-prefixed byte buffer.
func (w *Writer) Buffer(b []byte) {
	w.Uint32(uint32(len(b)))
	w.RawBytes(b)
}

// QBuffer appends a u16-length-prefixed byte buffer.
func (w *Writer) QBuffer(b []byte) {
	w.Uint16(uint16(len(b)))
	w.RawBytes(b)
}

// String appends a u16-length-prefixed, NUL-terminated string; the length
// includes the terminator.
func (w *Writer) String(s string) {
	w.Uint16(uint16(len(s) + 1))
	w.RawBytes([]byte(s))
	w.Uint8(0)
}
