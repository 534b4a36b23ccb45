package qcrypto

import (
	"crypto/hmac"
	"crypto/md5"
)

// HMACMD5 returns the full 16-byte HMAC-MD5 of data under key. Used both for
// ticket integrity and for PRUDP packet signatures when a session key is
// available.
func HMACMD5(key, data []byte) [md5.Size]byte {
	h := hmac.New(md5.New, key)
	h.Write(data)
	var out [md5.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// PacketSignature truncates an HMAC-MD5 to the 4-byte signature PRUDP DATA
// packets carry.
func PacketSignature(key, data []byte) uint32 {
	sum := HMACMD5(key, data)
	return uint32(sum[0]) | uint32(sum[1])<<8 | uint32(sum[2])<<16 | uint32(sum[3])<<24
}

// Sum32 computes the unsigned 32-bit sum of b, used for the access-key-based
// SYN/CONNECT signature (no session key is known yet).
func Sum32(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return sum
}
