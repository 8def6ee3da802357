package mediator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration marks wiring problems. Callers must not retry them.
var ErrConfiguration = errors.New("mediator configuration error")

var (
	ErrNoHandler        = fmt.Errorf("%w: no handler registered", ErrConfiguration)
	ErrDuplicateHandler = fmt.Errorf("%w: handler already registered", ErrConfiguration)
	ErrAmbiguousHandler = fmt.Errorf("%w: more than one handler matches", ErrConfiguration)
	ErrNextCalledTwice  = fmt.Errorf("%w: pipeline behavior invoked next more than once", ErrConfiguration)
	ErrResultType       = fmt.Errorf("%w: handler result has unexpected type", ErrConfiguration)
	ErrUndecodable      = errors.New("request payload could not be decoded")
	ErrHandlerPanic     = errors.New("request handler panicked")
	ErrRejected         = errors.New("request rejected")
)

type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when a request fails its own Validate check.
type ValidationError struct {
	Request  string
	Failures []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("validation failed for %s", e.Request)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		if failure.Field == "" {
			parts = append(parts, failure.Message)
			continue
		}
		parts = append(parts, failure.Field+": "+failure.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Request, strings.Join(parts, "; "))
}

func AsValidationError(err error) (*ValidationError, bool) {
	var target *ValidationError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Reject marks a handler error as a business-rule rejection. Rejected
// requests fail the same way on every attempt.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

// IsPermanent reports whether err can never succeed on retry.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUndecodable) || errors.Is(err, ErrRejected) {
		return true
	}
	_, ok := AsValidationError(err)
	return ok
}
