package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const rawSecretSize = 48

// New returns a fresh opaque secret: 48 random bytes, URL-safe base64 without
// padding. The encoded form is what travels to the client.
func New() (string, error) {
	var raw [rawSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Digest returns the hex-encoded SHA-256 of the secret. Storage and lookup
// use only this value; the raw secret is never persisted.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
