package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches what most provisioning tools emit today.
const DefaultBcryptCost = 12

// bcrypt silently ignores input past 72 bytes; longer passwords never match.
const bcryptMaxBytes = 72

// Bcrypt verifies (and can produce) bcrypt hashes. New accounts never get
// bcrypt hashes from the engine; it exists so imported users keep working.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher with the given cost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns a bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > bcryptMaxBytes {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify compares password against a bcrypt hash.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if len(password) > bcryptMaxBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsUpgrade reports whether encodedHash uses a lower cost than b.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}

func isBcryptHash(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
