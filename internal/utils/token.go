package utils // package utils provides helper functions for credentials and tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// sessionTokenBytes is the amount of random data behind each bearer
// token: 32 bytes = 256 bits, base64url encoded to 43 characters.
const sessionTokenBytes = 32

// NewSessionToken returns an opaque, cryptographically random bearer
// token.  The token is only ever used as a map key on the server; it
// carries no claims and cannot be decoded.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
