// Package crypto hashes and checks account passwords with Argon2id.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost. Changing any of these invalidates every stored hash.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // KiB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	// SaltLen is the per-account salt size.
	SaltLen = 16
)

// dummySalt feeds BurnVerify; its value is irrelevant.
var dummySalt = make([]byte, SaltLen)

// NewSalt returns a fresh random per-account salt.
func NewSalt() ([]byte, error) {
	b := make([]byte, SaltLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// HashPassword derives the stored hash for password under salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword compares in constant time. An account without a stored hash never verifies.
func VerifyPassword(password, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(HashPassword(password, salt), expected) == 1
}

// BurnVerify spends the same work as VerifyPassword and always fails. Login calls
// it for unknown emails so response time does not reveal which emails exist.
func BurnVerify(password []byte) bool {
	_ = HashPassword(password, dummySalt)
	return false
}
