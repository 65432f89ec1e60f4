// Package sentinel holds the storage-level facts that document and blob stores
// report. Services translate them into domain error codes at their boundary;
// handlers never see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound: the application, the record for a document type, or the blob is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict: an application id or application number is already taken.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: stored data does not fit together, such as a record filed under another application.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: the backend could not be reached or refused the call.
	ErrUnavailable = errors.New("unavailable")
)
