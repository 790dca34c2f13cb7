package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
)

const (
	minPasswordLen = 8
	minUsernameLen = 3
	maxUsernameLen = 100

	// bcrypt only reads the first 72 bytes and refuses longer input.
	maxPasswordBytes = 72
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email is invalid")
	}
	return nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return apperr.Validation("password must be at least 8 characters")
	}
	if len(pw) > maxPasswordBytes {
		return apperr.Validation("password must be at most 72 bytes")
	}
	return nil
}

func validateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minUsernameLen || n > maxUsernameLen {
		return apperr.Validation("username must be between 3 and 100 characters")
	}
	return nil
}
