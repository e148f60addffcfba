package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeForbidden     = "forbidden"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeInternal      = "internal"
	ErrCodeAlreadyJoined = "already_joined"
	ErrCodeNotJoined     = "not_joined"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// UpstreamError marks err as a failure of a storage or provider dependency.
func UpstreamError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ToCoreError classifies err by the sentinel it wraps.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return coreError(ErrCodeForbidden, err.Error())
	case errors.Is(err, ErrValidation):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrUpstreamUnavailable):
		return coreError(ErrCodeUnavailable, "service temporarily unavailable")
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
