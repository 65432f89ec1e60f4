package handler

import (
	"strings"

	"intake/internal/documents/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

const maxNotesLength = 2000

type applicantRequest struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Program  string `json:"program"`
}

type CreateApplicationRequest struct {
	Applicant         applicantRequest `json:"applicant"`
	RequiredDocuments []string         `json:"required_documents,omitempty"`

	applicant models.Applicant
	required  []models.DocumentType
}

func (r *CreateApplicationRequest) Validate() error {
	applicantID, err := id.ParseApplicantID(r.Applicant.ID)
	if err != nil {
		return err
	}
	r.applicant = models.Applicant{
		ID:       applicantID,
		FullName: strings.TrimSpace(r.Applicant.FullName),
		Email:    strings.TrimSpace(r.Applicant.Email),
		Program:  strings.TrimSpace(r.Applicant.Program),
	}
	if r.applicant.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "applicant full_name is required")
	}

	r.required = r.required[:0]
	for _, raw := range r.RequiredDocuments {
		t, err := models.ParseDocumentType(strings.TrimSpace(raw))
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "unknown document type: "+raw)
		}
		r.required = append(r.required, t)
	}
	return nil
}

// DecisionRequest is the body of verify and reject. Notes are optional for
// verify; reject enforces them in the service.
type DecisionRequest struct {
	Notes string `json:"notes"`
}

func (r *DecisionRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if len(r.Notes) > maxNotesLength {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 2000 characters")
	}
	return nil
}
