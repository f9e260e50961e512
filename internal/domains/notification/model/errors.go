package model

import "errors"

// ================================================
// SENTINEL ERRORS
// ================================================

var (
	// History
	ErrHistoryNotFound   = errors.New("notification not found")
	ErrInvalidTransition = errors.New("illegal status transition")
	ErrConcurrentUpdate  = errors.New("concurrent history update")

	// Templates
	ErrTemplateNotFound   = errors.New("template not found")
	ErrTemplateInactive   = errors.New("template is inactive")
	ErrTemplateNameExists = errors.New("template name already exists")

	// Preferences
	ErrPreferenceNotFound = errors.New("user preference not found")

	// Dispatch
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrMissingConfig     = errors.New("channel provider not configured")
	ErrInvalidRecipient  = errors.New("invalid recipient address")
	ErrContentTooLarge   = errors.New("content exceeds channel size limit")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrNoSession         = errors.New("no active in-app session")
	ErrUnknownChannel    = errors.New("unknown delivery channel")

	// Validation
	ErrInvalidJSONB = errors.New("invalid JSONB data")
)

// ================================================
// ERROR CODES (API responses)
// ================================================

const (
	ErrCodeNotFound          = "NOTIFICATION_NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeTemplateNotFound  = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInactive  = "TEMPLATE_INACTIVE"
	ErrCodeTemplateExists    = "TEMPLATE_NAME_EXISTS"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeCircuitOpen       = "CIRCUIT_OPEN"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ================================================
// PERMANENT / TRANSIENT CLASSIFICATION
// ================================================

// PermanentError marks a delivery failure that no retry can fix, such as a
// malformed address or an oversized payload. The retry policy stops on it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain, or is one of the inherently permanent sentinels.
func IsPermanent(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrContentTooLarge) ||
		errors.Is(err, ErrMissingConfig)
}
