// Package auth implements bearer-token authentication for the HTTP
// surface around the engine: a single shared API key, derived with
// PBKDF2 and checked in constant time on every request.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength     = 16
	iterationCount = 4096
	keyLength      = 32
)

// ErrInvalidKey is returned when a presented API key does not match.
var ErrInvalidKey = errors.New("auth: invalid api key")

// Keyring holds the derived form of a single shared API key. Nothing
// about the plaintext key is retained after NewKeyring returns.
type Keyring struct {
	salt    []byte
	derived []byte
}

// NewKeyring derives a Keyring from plaintext, generating a fresh random
// salt.
func NewKeyring(plaintext string) (*Keyring, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("auth: generate salt: %w", err)
	}
	return &Keyring{
		salt:    salt,
		derived: pbkdf2.Key([]byte(plaintext), salt, iterationCount, keyLength, sha256.New),
	}, nil
}

// Check reports whether candidate matches the keyring's key, in
// constant time with respect to the derived key bytes.
func (k *Keyring) Check(candidate string) error {
	got := pbkdf2.Key([]byte(candidate), k.salt, iterationCount, keyLength, sha256.New)
	if !hmac.Equal(got, k.derived) {
		return ErrInvalidKey
	}
	return nil
}
