package repositories

import "fmt"

// CounterErrorCode classifies counter failures that are not backend errors.
type CounterErrorCode string

const (
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorExhausted means the next value would pass the counter's maxValue.
	CounterErrorExhausted CounterErrorCode = "counter_exhausted"
)

// CounterError is returned by counter repositories for rejected increments.
type CounterError struct {
	Code    CounterErrorCode
	Message string
	Err     error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound, IsConflict and IsUnavailable let CounterError travel as a RepositoryError.
// An exhausted counter is reported as a conflict.
func (e *CounterError) IsNotFound() bool    { return false }
func (e *CounterError) IsConflict() bool    { return e != nil && e.Code == CounterErrorExhausted }
func (e *CounterError) IsUnavailable() bool { return false }

var _ RepositoryError = (*CounterError)(nil)

// NewCounterError builds a CounterError, defaulting the message to the code.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, Message: message, Err: err}
}
