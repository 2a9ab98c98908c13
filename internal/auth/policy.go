package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// passwordMinLength is the minimum accepted password length.
const passwordMinLength = 8

// passwordSymbols is the punctuation set that satisfies the
// special-character rule.
const passwordSymbols = "!@#$%^&*()_+-=[]{}|;':\",./<>?"

// ValidatePassword checks a candidate password against the strength
// policy: minimum length plus at least one uppercase letter, one
// lowercase letter, one digit, and one symbol.
//
// The returned error wraps ErrWeakPassword and names the first
// violated rule, so transports can surface a specific message without
// inspecting the password itself.
func ValidatePassword(password string) error {
	// Count runes, not bytes: a multibyte character is one character.
	if utf8.RuneCountInString(password) < passwordMinLength {
		return fmt.Errorf("%w: must be at least %d characters long", ErrWeakPassword, passwordMinLength)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, c):
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("%w: must contain at least one uppercase letter", ErrWeakPassword)
	case !hasLower:
		return fmt.Errorf("%w: must contain at least one lowercase letter", ErrWeakPassword)
	case !hasDigit:
		return fmt.Errorf("%w: must contain at least one digit", ErrWeakPassword)
	case !hasSymbol:
		return fmt.Errorf("%w: must contain at least one special character", ErrWeakPassword)
	}

	return nil
}
