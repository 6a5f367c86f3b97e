package goIdentity

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/goIdentity/internal"
)

const (
	minPasswordBytes = 8
	maxPasswordBytes = 128
	maxNameRunes     = 100
	maxEmailBytes    = 254
)

// normalizeEmail lower-cases and trims. Stored emails are always normalized.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email", "is required")
	}
	if len(email) > maxEmailBytes {
		return validationError("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return validationError("email", "is not a valid address")
	}
	if !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return validationError("email", "is not a valid address")
	}
	return nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return validationError("name", "is required")
	}
	if n > maxNameRunes {
		return validationError("name", "must be at most 100 characters")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordBytes {
		return validationError("password", "must be at least 8 characters")
	}
	if len(password) > maxPasswordBytes {
		return validationError("password", "must be at most 128 bytes")
	}
	return nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

func validateCurrency(code string) error {
	if !isCurrencyCode(code) {
		return validationError("currencyCode", "must be a 3-letter ISO 4217 code")
	}
	return nil
}

// validateOpaqueToken rejects token shapes the codec never issues, so they
// are refused without touching a store.
func validateOpaqueToken(token string) bool {
	return internal.CheckOpaqueToken(token) == nil
}
