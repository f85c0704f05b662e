package apperr

import "errors"

var (
	// ErrUnauthenticated covers missing, malformed, expired or unverifiable
	// session tokens, and Google credentials that can no longer be refreshed.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUserNotFound    = errors.New("user not found")
	ErrValidation      = errors.New("validation failed")
	ErrUpstream        = errors.New("upstream provider error")
	ErrTriageParse     = errors.New("triage response does not match the expected schema")
	ErrNotFound        = errors.New("not found")
)

// ValidationError carries a message safe to show to API clients.
type ValidationError struct {
	Message string
}

func NewValidation(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

var (
	ErrInvalidRange  = NewValidation("Start and end times are required.")
	ErrMissingFields = NewValidation("Missing required event details.")
)
