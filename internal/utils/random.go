package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RefreshTokenBytes is the entropy of an opaque refresh token.
const RefreshTokenBytes = 64

// RandomToken returns n random bytes as unpadded URL-safe base64.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
