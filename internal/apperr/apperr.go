// Package apperr holds the error taxonomy shared by the security core and the
// HTTP boundary. Every failure that reaches a client carries a stable Kind.
package apperr

import (
	"errors"
	"net/http"
	"time"
)

type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountLocked      Kind = "account_locked"
	KindOTPInvalid         Kind = "otp_invalid"
	KindTokenInvalid       Kind = "token_invalid"
	KindRefreshRevoked     Kind = "refresh_revoked"
	KindForbidden          Kind = "forbidden"
	KindDuplicateIdentity  Kind = "duplicate_identity"
	KindEncryption         Kind = "encryption_failure"
	KindDecryption         Kind = "decryption_failure"
	KindCSRF               Kind = "csrf_invalid"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so wrapped copies still satisfy errors.Is against the
// package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = New(KindInvalidCredentials, "invalid credentials")
	ErrAccountLocked      = New(KindAccountLocked, "account temporarily locked")
	ErrOTPInvalid         = New(KindOTPInvalid, "invalid or expired code")
	ErrTokenInvalid       = New(KindTokenInvalid, "invalid or expired token")
	ErrRefreshRevoked     = New(KindRefreshRevoked, "refresh token revoked")
	ErrForbidden          = New(KindForbidden, "insufficient permissions")
	ErrDuplicateIdentity  = New(KindDuplicateIdentity, "username or email already registered")
	ErrEncryption         = New(KindEncryption, "encryption failure")
	ErrDecryption         = New(KindDecryption, "decryption failure")
	ErrCSRF               = New(KindCSRF, "invalid csrf token")
	ErrValidation         = New(KindValidation, "validation failed")
	ErrNotFound           = New(KindNotFound, "not found")
)

// Locked builds an AccountLocked error carrying the remaining lock time.
func Locked(retryAfter time.Duration) *Error {
	return &Error{Kind: KindAccountLocked, Message: ErrAccountLocked.Message, RetryAfter: retryAfter}
}

// Validation builds a validation error with a client-safe message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Wrap attaches an internal cause to a kind without changing its client message.
func Wrap(base *Error, err error) *Error {
	return &Error{Kind: base.Kind, Message: base.Message, RetryAfter: base.RetryAfter, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func Status(kind Kind) int {
	switch kind {
	case KindInvalidCredentials, KindOTPInvalid, KindTokenInvalid, KindRefreshRevoked:
		return http.StatusUnauthorized
	case KindAccountLocked:
		return http.StatusTooManyRequests
	case KindForbidden, KindCSRF:
		return http.StatusForbidden
	case KindDuplicateIdentity:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindEncryption, KindDecryption, KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
