package llm

import (
	"errors"
	"fmt"
)

// ErrRequestPrecondition is wrapped by every BuildRequest validation failure.
var ErrRequestPrecondition = errors.New("request precondition failed")

// NetworkError is a transport failure (StatusCode 0) or a non-2xx reply.
type NetworkError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *NetworkError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP error: %d %s\n%s", e.StatusCode, e.Status, e.Body)
}

// ParseError means the 2xx body was not valid JSON.
type ParseError struct {
	Err error
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Parse error: %v\nRaw: %s", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRequestPrecondition, fmt.Sprintf(format, args...))
}

// validateQuery applies the checks shared by every provider.
func validateQuery(q Query) error {
	if q.Question == "" {
		return preconditionf("question text is empty")
	}
	if len(q.Images) == 0 {
		return preconditionf("no images provided")
	}
	return nil
}
