package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const (
	opaqueTokenSize = 32
	// OpaqueTokenLength is the encoded length of every opaque token.
	OpaqueTokenLength = 43
	// TokenHashLength is the hex length of a stored token digest.
	TokenHashLength = 64
)

// ErrMalformedToken is returned when a presented token cannot be an opaque token we issued.
var ErrMalformedToken = errors.New("malformed opaque token")

// NewOpaqueToken returns 256 random bits, base64url without padding.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken is the at-rest digest of an opaque token. Tokens are high-entropy,
// so a fast hash is the right tool here; passwords never go through it.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CheckOpaqueToken rejects values that could not have been produced by NewOpaqueToken.
func CheckOpaqueToken(token string) error {
	if len(token) != OpaqueTokenLength {
		return ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != opaqueTokenSize {
		return ErrMalformedToken
	}
	return nil
}

// ValidTokenHash reports whether s looks like a HashToken output.
func ValidTokenHash(s string) bool {
	if len(s) != TokenHashLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
