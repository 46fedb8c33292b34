package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateSecretKey returns a random 32 character key, usable as SECRET_KEY for both
// AES-256 token encryption and JWT signing.
func GenerateSecretKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
