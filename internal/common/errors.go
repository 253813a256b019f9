// Package common defines shared constants and sentinel errors used across
// the transport, service and repository layers of DataKeeper. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound          = errors.New("not found")
	ErrConstraintViolation = errors.New("row rejected by store constraint")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Request shape errors.
	ErrMalformedRequest  = errors.New("malformed request")
	ErrMissingCredential = errors.New("missing credential")

	// Resolution errors.
	ErrUnknownConfig       = errors.New("unknown config")
	ErrConfigDisabled      = errors.New("config disabled")
	ErrUnknownDocumentType = errors.New("unknown document type")

	// Data engine errors.
	ErrValidationFailed    = errors.New("validation failed")
	ErrConflictPersistence = errors.New("conflicting concurrent write, retry later")
	ErrQueryFailed         = errors.New("query failed")

	// File subsystem errors.
	ErrDecryptionFailed = errors.New("decryption failed")

	// Downstream errors.
	ErrTimeout     = errors.New("timeout")
	ErrDownstream  = errors.New("downstream unavailable")
	ErrJobRejected = errors.New("job rejected")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Retryable reports whether the caller may retry the failed operation as is.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflictPersistence) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrDownstream)
}
