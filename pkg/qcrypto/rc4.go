// Package qcrypto implements the symmetric-crypto primitives the core needs:
// per-direction RC4 stream state, HMAC-MD5 signatures, the password-based key
// derivation used for Kerberos-style tickets, and authenticated sealing of
// the internal ticket blob.
package qcrypto

import "crypto/rc4"

// RC4 wraps a keyed RC4 stream cipher for one direction of one connection.
// Unlike crypto/rc4.Cipher on its own, it remembers its key so Reset can
// reinitialize the keystream on a rekey, matching the separate
// inbound/outbound cipher state a connection carries.
type RC4 struct {
	key    []byte
	cipher *rc4.Cipher
}

// NewRC4 keys a fresh RC4 stream. Keys of any length are accepted: an empty
// key is treated as a single zero byte, and keys over 256 bytes (beyond
// RC4's defined key-schedule range) are truncated, matching the common
// implementation-defined behaviour for over-length keys.
func NewRC4(key []byte) *RC4 {
	c := &RC4{key: normalizeKey(key)}
	c.reinit()
	return c
}

func normalizeKey(key []byte) []byte {
	switch {
	case len(key) == 0:
		return []byte{0}
	case len(key) > 256:
		return append([]byte(nil), key[:256]...)
	default:
		return append([]byte(nil), key...)
	}
}

func (c *RC4) reinit() {
	cipher, err := rc4.NewCipher(c.key)
	if err != nil {
		// normalizeKey guarantees 1..256 bytes, which rc4.NewCipher always accepts.
		panic("qcrypto: invalid rc4 key: " + err.Error())
	}
	c.cipher = cipher
}

// Reset reinitializes the keystream from the original key, discarding any
// progress made by prior XORKeyStream calls. Used when a connection rekeys.
func (c *RC4) Reset() {
	c.reinit()
}

// XORKeyStream encrypts or decrypts src into dst (RC4 is its own inverse).
func (c *RC4) XORKeyStream(dst, src []byte) {
	c.cipher.XORKeyStream(dst, src)
}

// Apply returns a new slice holding src encrypted/decrypted with the current
// keystream position, advancing the stream.
func (c *RC4) Apply(src []byte) []byte {
	dst := make([]byte, len(src))
	c.XORKeyStream(dst, src)
	return dst
}
