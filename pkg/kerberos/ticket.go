package kerberos

import (
	"time"

	"github.com/netzcore/netzd/pkg/wire"
)

// SessionKey is the 16-byte symmetric key negotiated for one ticket.
type SessionKey [16]byte

// InternalTicket is the plaintext form of a ticket, sealed with the process
// master secret and never exposed to clients directly.
type InternalTicket struct {
	PrincipalID uint32
	ValidUntil  time.Time
	SessionKey  SessionKey
}

func (t InternalTicket) encode() []byte {
	w := wire.NewWriter()
	w.Uint32(t.PrincipalID)
	w.Uint64(uint64(t.ValidUntil.Unix()))
	w.RawBytes(t.SessionKey[:])
	return w.Bytes()
}

func decodeInternalTicket(b []byte) (InternalTicket, error) {
	r := wire.NewReader(b)
	pid, err := r.Uint32()
	if err != nil {
		return InternalTicket{}, err
	}
	until, err := r.Uint64()
	if err != nil {
		return InternalTicket{}, err
	}
	key, err := r.Bytes(len(SessionKey{}))
	if err != nil {
		return InternalTicket{}, err
	}
	var sk SessionKey
	copy(sk[:], key)
	return InternalTicket{
		PrincipalID: pid,
		ValidUntil:  time.Unix(int64(until), 0).UTC(),
		SessionKey:  sk,
	}, nil
}
