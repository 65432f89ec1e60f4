package models

import (
	"net/mail"
	"strings"
	"time"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

// Applicant is the person an application belongs to.
type Applicant struct {
	ID       id.ApplicantID `json:"id"`
	FullName string         `json:"full_name"`
	Email    string         `json:"email"`
	Program  string         `json:"program,omitempty"`
}

// Application is the aggregate root owning one DocumentRecord per required type.
//
// Invariants:
//   - RequiredDocuments is non-empty, duplicate-free and in canonical order
//   - Number is non-empty and never changes
//   - Applications are never deleted
type Application struct {
	ID                id.ApplicationID `json:"id"`
	Number            string           `json:"application_number"`
	Applicant         Applicant        `json:"applicant"`
	RequiredDocuments []DocumentType   `json:"required_documents"`
	CreatedAt         time.Time        `json:"created_at"`
}

// NewApplication validates invariants and normalizes the required set.
// A nil or empty required set means every document type.
func NewApplication(appID id.ApplicationID, number string, applicant Applicant, required []DocumentType, now time.Time) (*Application, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application number cannot be empty")
	}
	if applicant.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant id is required")
	}
	applicant.FullName = strings.TrimSpace(applicant.FullName)
	if applicant.FullName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant name cannot be empty")
	}
	if len(applicant.FullName) > 200 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant name must be 200 characters or less")
	}
	applicant.Email = strings.TrimSpace(applicant.Email)
	if applicant.Email != "" {
		if _, err := mail.ParseAddress(applicant.Email); err != nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant email is invalid")
		}
	}
	applicant.Program = strings.TrimSpace(applicant.Program)

	docs, err := normalizeRequired(required)
	if err != nil {
		return nil, err
	}

	return &Application{
		ID:                appID,
		Number:            number,
		Applicant:         applicant,
		RequiredDocuments: docs,
		CreatedAt:         now,
	}, nil
}

// NewRecords returns the initial not_uploaded record for every required type.
func (a *Application) NewRecords(now time.Time) []*DocumentRecord {
	records := make([]*DocumentRecord, 0, len(a.RequiredDocuments))
	for _, t := range a.RequiredDocuments {
		records = append(records, NewDocumentRecord(a.ID, t, now))
	}
	return records
}

// Requires reports whether docType is part of this application.
func (a *Application) Requires(docType DocumentType) bool {
	for _, t := range a.RequiredDocuments {
		if t == docType {
			return true
		}
	}
	return false
}

func normalizeRequired(required []DocumentType) ([]DocumentType, error) {
	if len(required) == 0 {
		return AllDocumentTypes(), nil
	}
	seen := make(map[DocumentType]bool, len(required))
	out := make([]DocumentType, 0, len(required))
	for _, t := range required {
		if t.Ordinal() < 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown document type: "+string(t))
		}
		if seen[t] {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "duplicate document type: "+string(t))
		}
		seen[t] = true
		out = append(out, t)
	}
	SortDocumentTypes(out)
	return out, nil
}
