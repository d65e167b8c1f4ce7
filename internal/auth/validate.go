package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// MinPasswordLength is the shortest password accepted locally.
const MinPasswordLength = 6

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	otpPattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidateEmail checks the local@domain.tld shape.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return errors.NewValidationError(errors.ErrCodeInvalidEmail, "enter a valid email address")
	}
	return nil
}

// ValidatePassword checks the minimum password length in characters.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return errors.NewValidationError(errors.ErrCodeWeakPassword, "password must be at least 6 characters")
	}
	return nil
}

// NormalizePhone strips spaces, dashes and parentheses.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, phone)
}

// ValidatePhone checks an E.164 number such as +15555550100.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return errors.NewValidationError(errors.ErrCodeInvalidPhone, "enter the phone number in international format, e.g. +15555550100")
	}
	return nil
}

// ValidateOTP checks a six-digit verification code.
func ValidateOTP(code string) error {
	if !otpPattern.MatchString(code) {
		return errors.NewValidationError(errors.ErrCodeInvalidOTP, "the verification code must be 6 digits")
	}
	return nil
}
