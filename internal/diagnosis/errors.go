package diagnosis

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnavailable = errors.New("diagnosis backend unavailable")
	ErrMalformedResponse  = errors.New("diagnosis backend returned a malformed response")
	ErrValidation         = errors.New("invalid request")
	ErrStoreUnavailable   = errors.New("persistence store unavailable")
	ErrSessionNotFound    = errors.New("equipment session not found")
	ErrSessionCompleted   = errors.New("equipment session already completed")
	ErrSessionBusy        = errors.New("equipment session has a turn in flight")
)

// ValidationError rejects caller input before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// malformed wraps a parse or schema failure so errors.Is matches ErrMalformedResponse.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
