package qcrypto

import "crypto/md5"

// DefaultPassword is used to derive a key when a principal has no configured
// password.
const DefaultPassword = "UbiDummyPwd"

// DeriveKey implements the password-to-key derivation: starting from the
// UTF-8 password bytes (or DefaultPassword if empty), iterate MD5 for
// (65000 + peerPID mod 1024) rounds. The resulting 16 bytes are used both as
// the RC4 key and the HMAC key when encoding a Kerberos-style ticket.
//
// peerPID is the *target* principal's pid at every call site, not the
// requester's own pid.
func DeriveKey(password string, peerPID uint32) [md5.Size]byte {
	if password == "" {
		password = DefaultPassword
	}
	rounds := 65000 + int(peerPID%1024)

	var sum [md5.Size]byte
	cur := []byte(password)
	for i := 0; i < rounds; i++ {
		sum = md5.Sum(cur)
		cur = sum[:]
	}
	return sum
}
