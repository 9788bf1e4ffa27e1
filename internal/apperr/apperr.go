// Package apperr provides the coded error type shared by services and handlers.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInternal            Code = "INTERNAL"
	CodeValidation          Code = "VALIDATION"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeExternalService     Code = "EXTERNAL_SERVICE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeForbidden           Code = "FORBIDDEN"

	// Voting errors
	CodeDuplicateVote     Code = "DUPLICATE_VOTE"
	CodeVoteLimitExceeded Code = "VOTE_LIMIT_EXCEEDED"
	CodeSessionNotActive  Code = "SESSION_NOT_ACTIVE"
	CodeReasonRequired    Code = "REASON_REQUIRED"
)

// HTTPStatus maps the code to the status handlers respond with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeReasonRequired:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidState, CodeConcurrencyConflict, CodeDuplicateVote,
		CodeVoteLimitExceeded, CodeSessionNotActive:
		return http.StatusConflict
	case CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code      Code              // Machine-readable error code
	Message   string            // Message safe to show to callers
	Metadata  map[string]string // Additional context, e.g. from/to status
	Cause     error             // Wrapped underlying error
	Retryable bool              // Whether repeating the whole operation may succeed
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// External builds an EXTERNAL_SERVICE error for a failed completion or other
// upstream call.
func External(message string, cause error, retryable bool) *Error {
	return &Error{Code: CodeExternalService, Message: message, Cause: cause, Retryable: retryable}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether err was marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// Sentinels usable with errors.Is.
var (
	ErrNotFound            = New(CodeNotFound, "not found")
	ErrInvalidState        = New(CodeInvalidState, "invalid state")
	ErrConcurrencyConflict = New(CodeConcurrencyConflict, "concurrency conflict")
	ErrValidation          = New(CodeValidation, "validation failed")
	ErrDuplicateVote       = New(CodeDuplicateVote, "duplicate vote")
	ErrVoteLimitExceeded   = New(CodeVoteLimitExceeded, "vote limit exceeded")
	ErrSessionNotActive    = New(CodeSessionNotActive, "session not active")
	ErrReasonRequired      = New(CodeReasonRequired, "reason required")
	ErrExternalService     = New(CodeExternalService, "external service error")
)
