// Package domain holds typed identifiers shared across modules. Each ID wraps a
// UUID so an ApplicationID can never be passed where an ApplicantID is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "intake/pkg/domain-errors"
)

// maxIDLength bounds input before it reaches uuid.Parse.
const maxIDLength = 64

type (
	ApplicationID uuid.UUID
	ApplicantID   uuid.UUID
)

func (i ApplicationID) String() string { return uuid.UUID(i).String() }
func (i ApplicationID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i ApplicantID) String() string { return uuid.UUID(i).String() }
func (i ApplicantID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

// NewApplicationID returns a fresh random application id.
func NewApplicationID() ApplicationID {
	return ApplicationID(uuid.New())
}

// ParseApplicationID parses an application id from untrusted input.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application_id")
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID(u), nil
}

// ParseApplicantID parses an applicant id from untrusted input.
func ParseApplicantID(s string) (ApplicantID, error) {
	u, err := parseUUID(s, "applicant_id")
	if err != nil {
		return ApplicantID{}, err
	}
	return ApplicantID(u), nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}

func (i ApplicationID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}

func (i *ApplicationID) UnmarshalText(b []byte) error {
	parsed, err := ParseApplicationID(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func (i ApplicantID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}

func (i *ApplicantID) UnmarshalText(b []byte) error {
	parsed, err := ParseApplicantID(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
