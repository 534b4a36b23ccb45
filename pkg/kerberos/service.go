package kerberos

import (
	"crypto/rand"
	"crypto/subtle"
	"time"

	"github.com/netzcore/netzd/pkg/qcrypto"
)

// TicketLifetime is how long a minted internal ticket remains valid.
const TicketLifetime = 120 * time.Second

// Service issues and validates tickets on behalf of one target principal
// (typically the authentication server issuing tickets for the secure
// server, or the secure server validating what it's handed). SelfPID is
// that target's own pid.
type Service struct {
	Store   Store
	SelfPID uint32

	// Now returns the current time; overridable in tests. Defaults to
	// time.Now when nil.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue mints an external ticket for requestingPID granting access to
// targetPID: the internal ticket form is sealed under the master secret,
// then the session key, target pid, and sealed ticket are encrypted and
// MAC'd under a key derived from the requester's password. The session key
// is freshly randomized on every call, so repeated Issue calls for the same
// pair never produce the same ticket.
func (s *Service) Issue(requestingPID, targetPID uint32) ([]byte, SessionKey, error) {
	target, ok, err := s.Store.LookupByPID(targetPID)
	if err != nil {
		return nil, SessionKey{}, err
	}
	if !ok {
		return nil, SessionKey{}, ErrInvalidCredentials
	}

	requester, ok, err := s.Store.LookupByPID(requestingPID)
	if err != nil {
		return nil, SessionKey{}, err
	}
	if !ok {
		return nil, SessionKey{}, ErrInvalidCredentials
	}

	var sessionKey SessionKey
	if _, err := rand.Read(sessionKey[:]); err != nil {
		return nil, SessionKey{}, err
	}

	internal := InternalTicket{
		PrincipalID: target.PID,
		ValidUntil:  s.now().Add(TicketLifetime),
		SessionKey:  sessionKey,
	}
	sealedInternal := qcrypto.Seal(qcrypto.MasterSecret(), internal.encode())

	// peer_pid in the KDF is the target pid at every call site, both here
	// and in Validate below, never the requester's own pid.
	kReq := qcrypto.DeriveKey(requester.Password, target.PID)

	plain := make([]byte, 0, len(sessionKey)+4+len(sealedInternal))
	plain = append(plain, sessionKey[:]...)
	plain = append(plain, byte(target.PID), byte(target.PID>>8), byte(target.PID>>16), byte(target.PID>>24))
	plain = append(plain, sealedInternal...)

	ct := qcrypto.NewRC4(kReq[:]).Apply(plain)
	mac := qcrypto.HMACMD5(kReq[:], ct)

	external := make([]byte, 0, len(ct)+len(mac))
	external = append(external, ct...)
	external = append(external, mac[:]...)

	return external, sessionKey, nil
}

// Validate checks a ticket presented by requestingPID against this
// Service's own pid (SelfPID) as the target: it rederives the same KDF key,
// verifies the MAC, decrypts, and opens the sealed internal ticket. On any
// failure it returns ErrInvalidCredentials or ErrExpiredTicket without
// otherwise distinguishing the cause.
func (s *Service) Validate(presented []byte, requestingPID uint32) (InternalTicket, error) {
	const macSize = 16
	if len(presented) < macSize+4+16 {
		return InternalTicket{}, ErrInvalidCredentials
	}
	ct := presented[:len(presented)-macSize]
	gotMAC := presented[len(presented)-macSize:]

	requester, ok, err := s.Store.LookupByPID(requestingPID)
	if err != nil {
		return InternalTicket{}, err
	}
	if !ok {
		return InternalTicket{}, ErrInvalidCredentials
	}

	kReq := qcrypto.DeriveKey(requester.Password, s.SelfPID)

	wantMAC := qcrypto.HMACMD5(kReq[:], ct)
	if subtle.ConstantTimeCompare(wantMAC[:], gotMAC) != 1 {
		return InternalTicket{}, ErrInvalidCredentials
	}

	plain := qcrypto.NewRC4(kReq[:]).Apply(ct)
	if len(plain) < 16+4 {
		return InternalTicket{}, ErrInvalidCredentials
	}
	targetPID := uint32(plain[16]) | uint32(plain[17])<<8 | uint32(plain[18])<<16 | uint32(plain[19])<<24
	if targetPID != s.SelfPID {
		return InternalTicket{}, ErrInvalidCredentials
	}
	sealedInternal := plain[20:]

	internalPlain, err := qcrypto.Open(qcrypto.MasterSecret(), sealedInternal)
	if err != nil {
		return InternalTicket{}, ErrInvalidCredentials
	}

	internal, err := decodeInternalTicket(internalPlain)
	if err != nil {
		return InternalTicket{}, ErrInvalidCredentials
	}

	if s.now().After(internal.ValidUntil) {
		return InternalTicket{}, ErrExpiredTicket
	}
	return internal, nil
}
