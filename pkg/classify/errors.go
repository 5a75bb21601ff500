package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is returned before any model call when the input is too short.
	ErrValidation = errors.New("ingredient text too short")
	// ErrServiceUnavailable matches every *ServiceUnavailableError.
	ErrServiceUnavailable = errors.New("classification service unavailable")
)

// ServiceUnavailableError wraps a transport or status failure reaching the model.
type ServiceUnavailableError struct {
	Err error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("classification service unavailable: %v", e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

func (e *ServiceUnavailableError) Is(target error) bool { return target == ErrServiceUnavailable }

// Timeout reports whether the failure was a deadline.
func (e *ServiceUnavailableError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// MalformedResponseError means the model answered with text that is not JSON,
// even after repair.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// SchemaValidationError means the model answered with JSON that does not match
// the expected shape.
type SchemaValidationError struct {
	Missing []string
	Invalid []string
	Raw     string
}

func (e *SchemaValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}
