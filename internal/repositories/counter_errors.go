package repositories

import "fmt"

// CounterErrorCode enumerates failure reasons for sequence operations.
type CounterErrorCode string

const (
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	CounterErrorExhausted    CounterErrorCode = "counter_exhausted"
)

// CounterError wraps sequence failures with a machine readable code.
type CounterError struct {
	Code      CounterErrorCode
	CounterID string
	Message   string
}

// Error implements the error interface.
func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.CounterID != "" {
		return fmt.Sprintf("counter %s: %s", e.CounterID, e.Message)
	}
	return e.Message
}

// NewCounterError constructs a typed counter error.
func NewCounterError(code CounterErrorCode, counterID, message string) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, CounterID: counterID, Message: message}
}
