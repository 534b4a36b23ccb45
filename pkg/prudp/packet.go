// Package prudp implements the PRUDP virtual-connection transport: packet
// framing/signing and the per-peer connection table with
// fragment reassembly.
package prudp

import (
	"encoding/binary"
	"errors"

	"github.com/netzcore/netzd/pkg/qcrypto"
)

// Type is the low 4 bits of a PRUDP packet's type_and_flags field.
type Type uint8

// Packet types.
const (
	TypeSyn        Type = 0
	TypeConnect    Type = 1
	TypeData       Type = 2
	TypeDisconnect Type = 3
	TypePing       Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeSyn:
		return "SYN"
	case TypeConnect:
		return "CONNECT"
	case TypeData:
		return "DATA"
	case TypeDisconnect:
		return "DISCONNECT"
	case TypePing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// Flags occupy the high 12 bits of type_and_flags.
type Flags uint16

// Known flags.
const (
	FlagAck Flags = 1 << iota
	FlagReliable
	FlagNeedAck
	FlagHasSize
	FlagMultiAck
)

// Has reports whether all bits of want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// hasOptionalField reports whether t's header carries the trailing 4-byte
// connection-signature-or-fragment-index field. DISCONNECT and PING never
// need it: there is no handshake signature or fragment to carry once a
// session is torn down or for a bare keepalive.
func hasOptionalField(t Type) bool {
	return t == TypeSyn || t == TypeConnect || t == TypeData
}

// headerSize is the fixed portion of a PRUDP header, excluding the optional
// trailing field and the optional explicit size.
const headerSize = 1 + 1 + 2 + 1 + 4 + 2 // source_vport, dest_vport, type_and_flags, session_id, signature, seq

// ErrShortPacket is returned when a datagram is too small to hold even the
// fixed PRUDP header.
var ErrShortPacket = errors.New("prudp: packet shorter than header")

// ErrPayloadTooShort is returned when the HAS_SIZE field claims a payload
// longer than the remaining datagram.
var ErrPayloadTooShort = errors.New("prudp: declared payload size exceeds packet")

// Packet is one parsed PRUDP datagram. Payload is the datagram's raw
// trailing bytes: for DATA packets past CONNECT, it is still RC4-encrypted
// until the connection layer decrypts it.
type Packet struct {
	SourceVPort byte
	DestVPort   byte
	Type        Type
	Flags       Flags
	SessionID   byte
	Signature   uint32
	Sequence    uint16
	// ConnSigOrFragment carries the handshake connection signature on
	// SYN/CONNECT, or the fragment index on DATA. Zero and unused for
	// DISCONNECT/PING.
	ConnSigOrFragment uint32
	Payload           []byte
}

// Parse decodes one PRUDP datagram. It never panics on malformed input.
func Parse(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, ErrShortPacket
	}
	var p Packet
	p.SourceVPort = b[0]
	p.DestVPort = b[1]
	typeAndFlags := binary.LittleEndian.Uint16(b[2:4])
	p.Type = Type(typeAndFlags & 0xF)
	p.Flags = Flags(typeAndFlags >> 4)
	p.SessionID = b[4]
	p.Signature = binary.LittleEndian.Uint32(b[5:9])
	p.Sequence = binary.LittleEndian.Uint16(b[9:11])

	rest := b[headerSize:]
	if hasOptionalField(p.Type) {
		if len(rest) < 4 {
			return Packet{}, ErrShortPacket
		}
		p.ConnSigOrFragment = binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
	}

	if p.Flags.Has(FlagHasSize) {
		if len(rest) < 4 {
			return Packet{}, ErrShortPacket
		}
		n := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return Packet{}, ErrPayloadTooShort
		}
		rest = rest[:n]
	}

	p.Payload = append([]byte(nil), rest...)
	return p, nil
}

// Encode serialises p back to wire bytes. If withSize is true, FlagHasSize
// is set and an explicit u32 payload length is emitted; otherwise the
// payload length is left to be inferred from the datagram size.
func (p Packet) Encode(withSize bool) []byte {
	flags := p.Flags
	if withSize {
		flags |= FlagHasSize
	} else {
		flags &^= FlagHasSize
	}

	buf := make([]byte, 0, headerSize+4+4+len(p.Payload))
	buf = p.appendHeader(buf, flags)
	if hasOptionalField(p.Type) {
		buf = binary.LittleEndian.AppendUint32(buf, p.ConnSigOrFragment)
	}
	if withSize {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Payload)))
	}
	buf = append(buf, p.Payload...)
	return buf
}

func (p Packet) appendHeader(buf []byte, flags Flags) []byte {
	buf = append(buf, p.SourceVPort, p.DestVPort)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(p.Type)|uint16(flags)<<4)
	buf = append(buf, p.SessionID)
	buf = binary.LittleEndian.AppendUint32(buf, p.Signature)
	buf = binary.LittleEndian.AppendUint16(buf, p.Sequence)
	return buf
}

// signedBody returns header_without_sig || payload, the bytes covered by a
// DATA packet's HMAC-MD5 signature. The signature field
// itself reads as zero so computing and verifying use the same bytes.
func (p Packet) signedBody() []byte {
	buf := p.appendHeader(nil, p.Flags)
	binary.LittleEndian.PutUint32(buf[5:9], 0) // zero the signature field
	if hasOptionalField(p.Type) {
		buf = binary.LittleEndian.AppendUint32(buf, p.ConnSigOrFragment)
	}
	buf = append(buf, p.Payload...)
	return buf
}

// Sign computes the signature this packet should carry, given the
// endpoint's access key and (if known) the connection's session key.
// SYN/CONNECT packets sign only the access key; DATA packets sign the
// header and payload with the session key.
func Sign(p Packet, accessKey, sessionKey []byte) uint32 {
	switch p.Type {
	case TypeSyn, TypeConnect:
		return qcrypto.Sum32(accessKey)
	default:
		return qcrypto.PacketSignature(sessionKey, p.signedBody())
	}
}

// VerifySignature reports whether p.Signature matches what Sign would
// compute.
func VerifySignature(p Packet, accessKey, sessionKey []byte) bool {
	return p.Signature == Sign(p, accessKey, sessionKey)
}
