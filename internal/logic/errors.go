package logic

import "errors"

// ErrNoAdAvailable is returned when the catalog has no ad matching the
// derived segment and requested channel.
var ErrNoAdAvailable = errors.New("no ad available")

// ValidationError marks a client input problem; the API layer maps it to
// a 400 response carrying Msg.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}
