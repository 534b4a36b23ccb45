package wire

import (
	"encoding/binary"
	"math"
	"strings"
)

// maxAlloc bounds any single length-prefixed allocation a Reader will make
// in response to untrusted input.
const maxAlloc = 1 << 20

// Reader reads primitive PRUDP/RMC wire values from an in-memory buffer. The
// zero value is not usable; use NewReader.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reading. buf is not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Rest returns the remaining unread bytes without advancing the cursor.
func (r *Reader) Rest() []byte {
	return r.buf[r.pos:]
}

// Pos returns the current read offset.
func (r *Reader) Pos() int {
	return r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > maxAlloc {
		return nil, ErrTooLarge
	}
	if r.Remaining() < n {
		return nil, ErrShortRead
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Bool reads a one-byte boolean (nonzero is true).
func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// Float64 reads a little-endian IEEE-754 double.
func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// Buffer reads a u32-length-prefixed byte buffer.
func (r *Reader) Buffer() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// QBuffer reads a u16-length-prefixed byte buffer.
func (r *Reader) QBuffer() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// String reads a u16-length-prefixed, NUL-terminated string. The length
// includes the terminator, per the reference framing.
func (r *Reader) String() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrStringNotTerminated
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if b[len(b)-1] != 0 {
		return "", ErrStringNotTerminated
	}
	return strings.TrimRight(string(b[:len(b)-1]), "\x00"), nil
}
