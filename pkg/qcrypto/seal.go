package qcrypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSealOpenFailed is returned when Open fails to authenticate a sealed
// blob, whether due to tampering or a wrong key.
var ErrSealOpenFailed = errors.New("qcrypto: seal authentication failed")

const (
	// SealKeySize is the master-secret size for Seal/Open.
	SealKeySize = 32
	// SealNonceSize is the nonce size for Seal/Open.
	SealNonceSize = 24
)

// Seal authenticates-and-encrypts plaintext under key using a fresh random
// nonce: a 32-byte key, 24-byte nonce, 16-byte tag, used for internal ticket
// sealing. The returned blob is nonce || ciphertext||tag.
func Seal(key *[SealKeySize]byte, plaintext []byte) []byte {
	var nonce [SealNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		panic("qcrypto: read random nonce: " + err.Error())
	}
	out := make([]byte, 0, SealNonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key)
}

// Open verifies and decrypts a blob produced by Seal.
func Open(key *[SealKeySize]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < SealNonceSize {
		return nil, ErrSealOpenFailed
	}
	var nonce [SealNonceSize]byte
	copy(nonce[:], sealed[:SealNonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[SealNonceSize:], &nonce, key)
	if !ok {
		return nil, ErrSealOpenFailed
	}
	return plaintext, nil
}
