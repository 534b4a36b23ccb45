// Package kerberos implements the Kerberos-style internal ticket service:
// deriving keys from principal passwords, minting sealed internal tickets,
// and validating tickets presented to a service.
//
// This is not RFC 4120 Kerberos; it borrows the name and the
// requester/target/ticket vocabulary from it, but the wire format and
// crypto are Quazal's own (RC4 + HMAC-MD5 + a modern AEAD for the sealed
// internal blob).
package kerberos

// Principal identifies an account or well-known service that can be a
// party to a ticket exchange. By convention pid 1 is the authentication
// server, pid 2 is the secure server, and client pids start above 1000.
type Principal struct {
	PID      uint32
	Name     string
	Password string
}

// Store looks up principals by pid or by name. Implementations must be safe
// for concurrent use; the core only ever performs single-row reads through
// this capability.
type Store interface {
	LookupByPID(pid uint32) (Principal, bool, error)
	LookupByName(name string) (Principal, bool, error)
}
