package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// GenerateVerifyToken returns a random token in two forms: the plaintext that
// goes into the verification email and its sha256 hex digest, which is the
// only form ever persisted. Confirmation recomputes the digest and compares.
func GenerateVerifyToken() (plaintext string, hashed string, err error) {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plaintext = hex.EncodeToString(raw)
	return plaintext, HashVerifyToken(plaintext), nil
}

func HashVerifyToken(plaintext string) string {
	digest := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(digest[:])
}
