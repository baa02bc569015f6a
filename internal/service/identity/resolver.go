package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
)

var contactPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError reports why a raw contact string was rejected.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid contact %q: %s", e.Input, e.Reason)
}

// Unwrap lets callers match support.ErrValidation.
func (e *ValidationError) Unwrap() error {
	return support.ErrValidation
}

// Resolve validates and normalizes a user supplied contact string.
func Resolve(raw string) (support.Contact, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", &ValidationError{Input: raw, Reason: "contact is required"}
	}
	if !contactPattern.MatchString(value) {
		return "", &ValidationError{Input: raw, Reason: "expected an address like name@example.com"}
	}
	return support.Contact(value), nil
}
