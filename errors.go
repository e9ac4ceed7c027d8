package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known public error codes. The host may also surface any other
// string as a code; these are only the ones the client itself assigns.
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeTimeout               = "TIMEOUT"
	CodeCancelled             = "CANCELLED"
	CodeRateLimited           = "RATE_LIMITED"
	CodeMaxReconnectsExceeded = "MAX_RECONNECTS_EXCEEDED"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeMiddlewareError       = "MIDDLEWARE_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeUnknown               = "UNKNOWN"
)

// Error is the public, serializable error shape surfaced to callers.
// It is the only error type the client's exported API ever returns.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s (cause: %s)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CallError is a host- or middleware-assigned error carrying an
// arbitrary code. It passes its code through unchanged when
// normalized.
type CallError struct {
	Code    string
	Message string
	Details any
	Cause   string
}

func (e *CallError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// TimeoutError indicates a call's effective timeout elapsed before a
// response arrived.
type TimeoutError struct {
	Path      string
	TimeoutMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call to %q timed out after %dms", e.Path, e.TimeoutMs)
}

// CancelledError indicates the call's context was cancelled externally
// (as opposed to an internally triggered timeout).
type CancelledError struct {
	Path   string
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("call to %q cancelled: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("call to %q cancelled", e.Path)
}

// ValidationError indicates a path or argument failed a syntactic
// check before any transport call was made. Issues is always
// non-empty.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %v", e.Path, e.Issues)
}

// NetworkError wraps a transport-level failure (connection refused,
// transport closed, write failure) that occurred before a structured
// response could be obtained.
type NetworkError struct {
	Path     string
	Original error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %q: %v", e.Path, e.Original)
}

func (e *NetworkError) Unwrap() error { return e.Original }

// normalizeError converts any error raised during a call into the
// public Error shape. A nil err yields nil; every non-nil err yields
// an *Error.
//
// Resolution order: (1) already one of the internal variants above,
// (2) already a *Error, (3) context cancellation/deadline, (4) shape
// match against {code, message} either as a Go value or as a
// JSON-encoded string, (5) fallback to CodeUnknown with the error's
// string form.
func normalizeError(err error) *Error {
	if err == nil {
		return nil
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return &Error{Code: callErr.Code, Message: callErr.Message, Details: callErr.Details, Cause: callErr.Cause}
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return &Error{
			Code:    CodeTimeout,
			Message: timeoutErr.Error(),
			Details: map[string]any{"timeoutMs": timeoutErr.TimeoutMs},
		}
	}

	var cancelledErr *CancelledError
	if errors.As(err, &cancelledErr) {
		return &Error{Code: CodeCancelled, Message: cancelledErr.Error()}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &Error{
			Code:    CodeValidationError,
			Message: validationErr.Error(),
			Details: map[string]any{"issues": validationErr.Issues},
		}
	}

	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return &Error{Code: CodeInternalError, Message: networkErr.Error(), Cause: causeString(networkErr.Original)}
	}

	var publicErr *Error
	if errors.As(err, &publicErr) {
		return publicErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Code: CodeCancelled, Message: err.Error()}
	}

	if shaped, ok := shapeMatch(err.Error()); ok {
		return shaped
	}

	return &Error{Code: CodeUnknown, Message: err.Error()}
}

// shapeMatch attempts to parse s as a JSON object with string "code"
// and "message" fields, the wire shape a host error arrives in when
// surfaced as an arbitrary thrown value rather than a structured
// response.
func shapeMatch(s string) (*Error, bool) {
	var shaped struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	}
	if err := json.Unmarshal([]byte(s), &shaped); err != nil {
		return nil, false
	}
	if shaped.Code == "" || shaped.Message == "" {
		return nil, false
	}
	return &Error{Code: shaped.Code, Message: shaped.Message, Details: shaped.Details}, true
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
