package support

import "errors"

// Error classes shared by every component that talks to the user or the
// backend. Components wrap these with detail; callers test with errors.Is.
var (
	ErrValidation   = errors.New("invalid contact")
	ErrNotFound     = errors.New("session not found")
	ErrNotReachable = errors.New("support backend not reachable")
)

// ErrorKind is the user-facing classification of a failure.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindNotReachable ErrorKind = "not_reachable"
)

// KindOf classifies err. Anything unrecognised is reported as not reachable
// so that no raw detail leaks to the display layer.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindNotReachable
	}
}

// UserMessage is the single notice shown for each error class.
func UserMessage(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "Please enter a valid email address"
	case KindNotFound:
		return "That conversation could not be found. Start a new one."
	default:
		return "Failed to send message. Please try again."
	}
}

// FailureNotice is the assistant turn text appended when an exchange fails.
const FailureNotice = "Sorry, I encountered an error. Please try again."
