// Package rmc implements the Remote Method Call framing carried inside
// PRUDP DATA payloads and the protocol registry that
// dispatches parsed calls to handlers.
package rmc

import (
	"errors"

	"github.com/netzcore/netzd/pkg/wire"
)

// requestBit marks a frame's protocol byte as a request by setting the high
// bit; protocol ids otherwise occupy the low 7 bits.
const requestBit = 0x80

// ErrShortFrame covers a length prefix or body too short to parse.
var ErrShortFrame = errors.New("rmc: frame shorter than declared length")

// Packet is one parsed RMC frame. Request and Response share a common
// prefix (protocol id, call id, method id); IsRequest selects which tail
// fields are meaningful.
//
// Notify frames (out of scope to act on, but must still parse without
// error) are not given a distinct wire shape here — no byte in the header is
// free to mark
// it without colliding with the protocol id's 7 bits. Instead a Response
// with CallID == 0 is treated as a Notify: real call ids start at 1 (see
// Dispatcher.nextCallID), so a response frame can never legitimately carry
// call id zero. IsNotify reports this case.
type Packet struct {
	IsRequest bool
	// ProtocolID is the single-byte form. The extended form that widens
	// this to a 16-bit id by stealing a bit elsewhere in the header is
	// not represented: no registered protocol here needs an id above
	// 127, and an out-of-range id simply resolves as UnknownProtocol.
	ProtocolID uint8
	CallID     uint32
	MethodID   uint32

	// Parameters is set on requests.
	Parameters []byte

	// Success, Data and Code are set on responses: Success selects
	// between Data (ok) and Code (err).
	Success bool
	Data    []byte
	Code    ErrorCode
}

// IsNotify reports whether a response-shaped packet is actually a Notify.
func (p Packet) IsNotify() bool { return !p.IsRequest && p.CallID == 0 }

// SplitFrame extracts one u32-length-prefixed RMC frame from the front of
// buf, returning the frame's body and whatever bytes remain. Multiple RMC
// frames may be packed into a single PRUDP payload; callers loop until buf
// is empty.
func SplitFrame(buf []byte) (body, rest []byte, err error) {
	r := wire.NewReader(buf)
	n, err := r.Uint32()
	if err != nil {
		return nil, nil, ErrShortFrame
	}
	body, err = r.Bytes(int(n))
	if err != nil {
		return nil, nil, ErrShortFrame
	}
	return body, r.Rest(), nil
}

// ParsePacket decodes one frame body (already stripped of its length
// prefix by SplitFrame). It never panics on malformed input.
func ParsePacket(body []byte) (Packet, error) {
	r := wire.NewReader(body)

	protoByte, err := r.Uint8()
	if err != nil {
		return Packet{}, err
	}
	p := Packet{
		IsRequest:  protoByte&requestBit != 0,
		ProtocolID: protoByte &^ requestBit,
	}

	p.CallID, err = r.Uint32()
	if err != nil {
		return Packet{}, err
	}
	p.MethodID, err = r.Uint32()
	if err != nil {
		return Packet{}, err
	}

	if p.IsRequest {
		p.Parameters = r.Rest()
		return p, nil
	}

	successByte, err := r.Uint8()
	if err != nil {
		return Packet{}, err
	}
	p.Success = successByte != 0
	if p.Success {
		p.Data = r.Rest()
	} else {
		code, err := r.Uint32()
		if err != nil {
			return Packet{}, err
		}
		p.Code = ErrorCode(code)
	}
	return p, nil
}

// EncodeFrame serialises p and prepends its u32 length prefix, ready to
// append to (or start) a PRUDP DATA payload.
func EncodeFrame(p Packet) []byte {
	w := wire.NewWriter()
	protoByte := p.ProtocolID &^ requestBit
	if p.IsRequest {
		protoByte |= requestBit
	}
	w.Uint8(protoByte)
	w.Uint32(p.CallID)
	w.Uint32(p.MethodID)

	if p.IsRequest {
		w.RawBytes(p.Parameters)
	} else if p.Success {
		w.Uint8(1)
		w.RawBytes(p.Data)
	} else {
		w.Uint8(0)
		w.Uint32(uint32(p.Code))
	}

	body := w.Bytes()
	framed := wire.NewWriter()
	framed.Uint32(uint32(len(body)))
	framed.RawBytes(body)
	return framed.Bytes()
}

// NewRequest builds a request frame.
func NewRequest(protocolID uint8, callID, methodID uint32, params []byte) Packet {
	return Packet{IsRequest: true, ProtocolID: protocolID, CallID: callID, MethodID: methodID, Parameters: params}
}

// NewOkResponse builds a successful response frame answering req.
func NewOkResponse(req Packet, data []byte) Packet {
	return Packet{ProtocolID: req.ProtocolID, CallID: req.CallID, MethodID: req.MethodID, Success: true, Data: data}
}

// NewErrResponse builds an error response frame answering req.
func NewErrResponse(req Packet, code ErrorCode) Packet {
	return Packet{ProtocolID: req.ProtocolID, CallID: req.CallID, MethodID: req.MethodID, Success: false, Code: code}
}
