package aspect

import (
	"errors"
	"fmt"
)

// WeaveError represents an error detected while weaving or unweaving.
//
// Weave errors include:
//   - Empty advice: weave called without any usable advice
//   - Invalid pointcut: a name pattern that does not compile
//   - Not bindable: the binder cannot intercept the matched target
//
// Failures raised by advice handlers or by the terminal callee are not
// WeaveErrors: the engine propagates them unchanged to the joinpoint's
// caller, without wrapping, translation or logging.
type WeaveError struct {
	// Code identifies the error category.
	Code WeaveErrorCode

	// Message is a human-readable description.
	Message string

	// Joinpoint names the affected member or function, when known.
	Joinpoint string

	// Details contains additional context.
	Details map[string]string

	// cause is the underlying binder or regexp error, when there is one.
	cause error
}

// WeaveErrorCode categorizes weave errors.
type WeaveErrorCode string

const (
	// ErrCodeEmptyAdvice indicates weave was called with no usable advice.
	ErrCodeEmptyAdvice WeaveErrorCode = "EMPTY_ADVICE"

	// ErrCodeInvalidPointcut indicates a pointcut that cannot be evaluated.
	ErrCodeInvalidPointcut WeaveErrorCode = "INVALID_POINTCUT"

	// ErrCodeNotBindable indicates the binder cannot intercept a target.
	ErrCodeNotBindable WeaveErrorCode = "NOT_BINDABLE"
)

// Error implements the error interface.
func (e *WeaveError) Error() string {
	if e.Joinpoint != "" && e.cause != nil {
		return fmt.Sprintf("%s: %s (joinpoint=%s): %v", e.Code, e.Message, e.Joinpoint, e.cause)
	}
	if e.Joinpoint != "" {
		return fmt.Sprintf("%s: %s (joinpoint=%s)", e.Code, e.Message, e.Joinpoint)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (e *WeaveError) Unwrap() error {
	return e.cause
}

// IsConfigError returns true if the error reports a configuration mistake:
// an empty advice set or an invalid pointcut.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var we *WeaveError
	if errors.As(err, &we) {
		return we.Code == ErrCodeEmptyAdvice || we.Code == ErrCodeInvalidPointcut
	}
	return false
}

// IsBindingError returns true if the error reports a target the binder
// could not intercept.
// Uses errors.As to handle wrapped errors.
func IsBindingError(err error) bool {
	var we *WeaveError
	if errors.As(err, &we) {
		return we.Code == ErrCodeNotBindable
	}
	return false
}

// NewConfigError creates a WeaveError for a configuration mistake.
func NewConfigError(code WeaveErrorCode, message string) *WeaveError {
	return &WeaveError{
		Code:    code,
		Message: message,
	}
}

// NewBindingError creates a WeaveError for a target the binder rejected.
func NewBindingError(joinpoint string, cause error) *WeaveError {
	return &WeaveError{
		Code:      ErrCodeNotBindable,
		Message:   "binder cannot intercept target",
		Joinpoint: joinpoint,
		cause:     cause,
	}
}

// NewPointcutError creates a WeaveError for a pattern that does not compile.
func NewPointcutError(pattern string, cause error) *WeaveError {
	return &WeaveError{
		Code:    ErrCodeInvalidPointcut,
		Message: "name pattern does not compile",
		Details: map[string]string{"pattern": pattern},
		cause:   cause,
	}
}
