package core

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error envelope
// -----------------------------------------------------------------------------

// Error is the canonical error envelope carried across engine boundaries.
// Code identifies the failure, Details carry structured context for logs
// and problem documents, and the wrapped cause is preserved for errors.Is/As.
type Error struct {
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	err     error
}

// NewError builds an Error from a cause, a code and optional details.
// A nil cause is allowed when the code alone describes the failure.
func NewError(err error, code string, details map[string]any) *Error {
	message := code
	if err != nil {
		message = err.Error()
	}
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
		err:     err,
	}
}

func (e *Error) Error() string {
	if e.Code != "" && e.Message != "" && e.Code != e.Message {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.err
}

// -----------------------------------------------------------------------------
// Error codes
// -----------------------------------------------------------------------------

const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeGatheringFailed  = "GATHERING_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeAPIError         = "API_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// -----------------------------------------------------------------------------
// Error kinds
// -----------------------------------------------------------------------------

// ErrorKind buckets failures by how the engine recovers from them.
// Recoverable kinds become the next prompt; the rest end the turn but
// never the session.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindGathering  ErrorKind = "gathering"
	KindNotFound   ErrorKind = "not_found"
	KindAuth       ErrorKind = "auth"
	KindAPI        ErrorKind = "api"
	KindUnknown    ErrorKind = "unknown"
)

func (k ErrorKind) String() string {
	return string(k)
}

// Recoverable reports whether the kind is resolved by re-prompting the user
// within the same turn flow rather than ending the turn.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindValidation, KindGathering, KindNotFound:
		return true
	default:
		return false
	}
}

// KindFromError classifies any error into the engine taxonomy. Unrecognized
// codes and plain errors classify as KindUnknown.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		return KindUnknown
	}
	switch cerr.Code {
	case CodeValidationFailed:
		return KindValidation
	case CodeGatheringFailed:
		return KindGathering
	case CodeNotFound:
		return KindNotFound
	case CodeUnauthorized, CodeForbidden:
		return KindAuth
	case CodeAPIError, CodeTimeout, CodeUnavailable:
		return KindAPI
	default:
		return KindUnknown
	}
}
