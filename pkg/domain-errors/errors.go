// Package domainerrors carries typed, API-facing errors. Services return these so
// transports can map them to status codes without string matching.
//
// Infrastructure layers should return pkg/platform/sentinel errors instead and let
// the service translate them into a Code here.
package domainerrors

import (
	"errors"
)

// Code identifies an error kind. Codes are stable wire values.
type Code string

const (
	// Document lifecycle kinds.
	CodeNotFound               Code = "not_found"
	CodeInvalidTransition      Code = "invalid_transition"
	CodeMissingReason          Code = "missing_reason"
	CodeNotEligibleForReupload Code = "not_eligible_for_reupload"
	CodeUnsupportedFileType    Code = "unsupported_file_type"
	CodeFileTooLarge           Code = "file_too_large"
	CodeStorageUnavailable     Code = "storage_unavailable"

	// General kinds.
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// Is is an alias for HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeStorageUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}
