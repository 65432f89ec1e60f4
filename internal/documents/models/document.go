package models

import (
	"slices"
	"strings"
	"time"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

// DocumentType is one of the closed set of documents an application may require.
type DocumentType string

const (
	DocumentTypeIdentityProof        DocumentType = "identity_proof"
	DocumentTypePriorAcademicRecordA DocumentType = "prior_academic_record_a"
	DocumentTypePriorAcademicRecordB DocumentType = "prior_academic_record_b"
	DocumentTypeMedicalCertificate   DocumentType = "medical_certificate"
	DocumentTypeEntranceResult       DocumentType = "entrance_result"
	DocumentTypeCategoryCertificate  DocumentType = "category_certificate"
	DocumentTypePhoto                DocumentType = "photo"
	DocumentTypeSignature            DocumentType = "signature"
)

// documentTypeOrder is the canonical listing order and the single source of truth
// for valid document types.
var documentTypeOrder = []DocumentType{
	DocumentTypeIdentityProof,
	DocumentTypePriorAcademicRecordA,
	DocumentTypePriorAcademicRecordB,
	DocumentTypeMedicalCertificate,
	DocumentTypeEntranceResult,
	DocumentTypeCategoryCertificate,
	DocumentTypePhoto,
	DocumentTypeSignature,
}

// AllDocumentTypes returns every document type in canonical order.
func AllDocumentTypes() []DocumentType {
	return slices.Clone(documentTypeOrder)
}

// ParseDocumentType validates external input against the closed set.
// An unknown type is reported as not found, matching an unknown record.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if t.Ordinal() < 0 {
		return "", dErrors.New(dErrors.CodeNotFound, "unknown document type: "+s)
	}
	return t, nil
}

// Ordinal is the position in canonical order, or -1 for unknown types.
func (t DocumentType) Ordinal() int {
	return slices.Index(documentTypeOrder, t)
}

func (t DocumentType) String() string {
	return string(t)
}

// SortDocumentTypes orders types canonically in place.
func SortDocumentTypes(types []DocumentType) {
	slices.SortFunc(types, func(a, b DocumentType) int {
		return a.Ordinal() - b.Ordinal()
	})
}

// SortRecords orders records by the fixed document type order.
func SortRecords(records []*DocumentRecord) {
	slices.SortFunc(records, func(a, b *DocumentRecord) int {
		return a.Type.Ordinal() - b.Type.Ordinal()
	})
}

// Status is the verification state of a single document.
type Status string

const (
	StatusNotUploaded Status = "not_uploaded"
	StatusPending     Status = "pending"
	StatusVerified    Status = "verified"
	StatusRejected    Status = "rejected"
)

// transitions is the exhaustive table of legal status changes.
// Verified has no outgoing edges.
var transitions = map[Status][]Status{
	StatusNotUploaded: {StatusPending},
	StatusPending:     {StatusVerified, StatusRejected},
	StatusRejected:    {StatusPending},
	StatusVerified:    {},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// ParseStatus validates external input against the closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown status: "+s)
	}
	return st, nil
}

// FileRef is an opaque handle to a blob held by the storage collaborator.
type FileRef string

// StoredFile describes a blob that has already been written to storage.
type StoredFile struct {
	Ref              FileRef
	OriginalFileName string
	ContentType      string
	SizeBytes        int64
}

// Reviewer is the staff identity supplied by the identity service.
type Reviewer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// DocumentRecord is the verification state of one required document within an application.
//
// Invariants:
//   - Status == not_uploaded ⇔ FileRef == ""
//   - VerifiedAt/VerifiedBy set ⇔ Status ∈ {verified, rejected}
//   - Transitions follow the table in this file; verified is terminal
type DocumentRecord struct {
	ApplicationID     id.ApplicationID `json:"application_id"`
	Type              DocumentType     `json:"document_type"`
	Status            Status           `json:"status"`
	FileRef           FileRef          `json:"file_ref,omitempty"`
	OriginalFileName  string           `json:"original_file_name,omitempty"`
	ContentType       string           `json:"content_type,omitempty"`
	SizeBytes         int64            `json:"size_bytes,omitempty"`
	UploadedAt        *time.Time       `json:"uploaded_at,omitempty"`
	VerifiedAt        *time.Time       `json:"verified_at,omitempty"`
	VerifiedBy        *Reviewer        `json:"verified_by,omitempty"`
	VerificationNotes string           `json:"verification_notes,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewDocumentRecord creates a record in its sole initial state.
func NewDocumentRecord(applicationID id.ApplicationID, docType DocumentType, now time.Time) *DocumentRecord {
	return &DocumentRecord{
		ApplicationID: applicationID,
		Type:          docType,
		Status:        StatusNotUploaded,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (d *DocumentRecord) Clone() *DocumentRecord {
	if d == nil {
		return nil
	}
	c := *d
	if d.UploadedAt != nil {
		t := *d.UploadedAt
		c.UploadedAt = &t
	}
	if d.VerifiedAt != nil {
		t := *d.VerifiedAt
		c.VerifiedAt = &t
	}
	if d.VerifiedBy != nil {
		r := *d.VerifiedBy
		c.VerifiedBy = &r
	}
	return &c
}

// CanSubmit checks that a file may be attached: only from not_uploaded or rejected.
// Pending documents are under review and verified ones are accepted; neither may be replaced.
func (d *DocumentRecord) CanSubmit() error {
	if !d.Status.CanTransitionTo(StatusPending) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot submit "+string(d.Type)+" while "+string(d.Status))
	}
	return nil
}

// ApplySubmit attaches the stored file and moves the record to pending.
// Call CanSubmit first.
func (d *DocumentRecord) ApplySubmit(file StoredFile, now time.Time) {
	uploadedAt := now
	d.Status = StatusPending
	d.FileRef = file.Ref
	d.OriginalFileName = file.OriginalFileName
	d.ContentType = file.ContentType
	d.SizeBytes = file.SizeBytes
	d.UploadedAt = &uploadedAt
	d.clearVerification()
	d.UpdatedAt = now
}

// CanVerify checks the record is awaiting review.
func (d *DocumentRecord) CanVerify() error {
	if !d.Status.CanTransitionTo(StatusVerified) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot verify "+string(d.Type)+" while "+string(d.Status))
	}
	return nil
}

// ApplyVerify accepts the document. Call CanVerify first.
func (d *DocumentRecord) ApplyVerify(reviewer Reviewer, notes string, now time.Time) {
	d.Status = StatusVerified
	d.stampVerification(reviewer, notes, now)
}

// CanReject checks a reason is present and the record is awaiting review.
// The reason is checked first so a missing reason is reported regardless of state.
func (d *DocumentRecord) CanReject(notes string) error {
	if strings.TrimSpace(notes) == "" {
		return dErrors.New(dErrors.CodeMissingReason, "rejection requires notes")
	}
	if !d.Status.CanTransitionTo(StatusRejected) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot reject "+string(d.Type)+" while "+string(d.Status))
	}
	return nil
}

// ApplyReject rejects the document, overwriting any earlier note. Call CanReject first.
func (d *DocumentRecord) ApplyReject(reviewer Reviewer, notes string, now time.Time) {
	d.Status = StatusRejected
	d.stampVerification(reviewer, notes, now)
}

// CanReupload checks the record is exactly rejected. First uploads go through submit.
func (d *DocumentRecord) CanReupload() error {
	if d.Status != StatusRejected {
		return dErrors.New(dErrors.CodeNotEligibleForReupload,
			"only rejected documents can be reuploaded; "+string(d.Type)+" is "+string(d.Status))
	}
	return nil
}

// CheckInvariants reports the first violated record invariant.
func (d *DocumentRecord) CheckInvariants() error {
	if !d.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown status "+string(d.Status))
	}
	if (d.Status == StatusNotUploaded) != (d.FileRef == "") {
		return dErrors.New(dErrors.CodeInvariantViolation, "file reference must be present exactly when uploaded")
	}
	reviewed := d.Status == StatusVerified || d.Status == StatusRejected
	if reviewed != (d.VerifiedAt != nil) || reviewed != (d.VerifiedBy != nil) {
		return dErrors.New(dErrors.CodeInvariantViolation, "verification stamp must be present exactly when reviewed")
	}
	return nil
}

func (d *DocumentRecord) stampVerification(reviewer Reviewer, notes string, now time.Time) {
	verifiedAt := now
	r := reviewer
	d.VerifiedAt = &verifiedAt
	d.VerifiedBy = &r
	d.VerificationNotes = strings.TrimSpace(notes)
	d.UpdatedAt = now
}

func (d *DocumentRecord) clearVerification() {
	d.VerifiedAt = nil
	d.VerifiedBy = nil
	d.VerificationNotes = ""
}
