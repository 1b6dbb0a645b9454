package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken mints a 256-bit secret rendered as 64 hex characters, the
// shared daemon token format of spec.md §4.B.3. Adapted from the
// teacher's generateSecureToken, swapping base64 for hex so the token is
// safe to place in a query string without escaping.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
