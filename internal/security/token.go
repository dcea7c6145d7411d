package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// NewSessionToken returns a fresh opaque session token: 32 bytes from
// crypto/rand, base64 URL-encoded without padding. The token is handed to
// the client exactly once and never persisted.
func NewSessionToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenDigest returns the hex SHA-256 digest of a session token. Lookups and
// storage always go through the digest so a database leak does not expose
// usable tokens.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
