package coach_api_client

import (
	"errors"
	"fmt"
)

// Errors the backend reports for the verification and completion endpoints.
var (
	ErrInvalidCode     = errors.New("invalid code")
	ErrExpired         = errors.New("code expired")
	ErrRateLimited     = errors.New("please wait before requesting another code")
	ErrUnknownIdentity = errors.New("unknown identity")
	ErrNotFound        = errors.New("workout not found")
	ErrConflict        = errors.New("workout already completed")
	ErrUnauthenticated = errors.New("not authenticated")
)

// StatusError is a non-2xx response that does not map to a known failure.
// Callers treat it as transient.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("API returned status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status code: %d, detail: %s", e.StatusCode, e.Detail)
}

// IsTransient reports whether err is a network or unexpected server failure
// that may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, known := range []error{
		ErrInvalidCode, ErrExpired, ErrRateLimited, ErrUnknownIdentity,
		ErrNotFound, ErrConflict, ErrUnauthenticated,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}
