package audit

import (
	"time"

	"github.com/google/uuid"

	id "intake/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers review decisions with regulatory significance.
	// Examples: document verified or rejected.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine intake activity.
	// Examples: application created, document submitted or downloaded.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the document services to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            uuid.UUID
	Category      EventCategory
	Timestamp     time.Time
	ApplicationID id.ApplicationID
	// Subject is the document type the action touched, empty for application-level events.
	Subject string
	Action  string
	// Decision is the document status after the action.
	Decision string
	// Reason carries reviewer notes for verify/reject.
	Reason    string
	RequestID string
	// ActorID is the applicant or reviewer who performed the action.
	ActorID   string
	ClientIP  string
	UserAgent string
}

type AuditEvent string

const (
	EventApplicationCreated AuditEvent = "application_created"
	EventDocumentSubmitted  AuditEvent = "document_submitted"
	EventDocumentVerified   AuditEvent = "document_verified"
	EventDocumentRejected   AuditEvent = "document_rejected"
	EventDocumentReuploaded AuditEvent = "document_reuploaded"
	EventDocumentDownloaded AuditEvent = "document_downloaded"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventDocumentVerified: CategoryCompliance,
	EventDocumentRejected: CategoryCompliance,

	EventApplicationCreated: CategoryOperations,
	EventDocumentSubmitted:  CategoryOperations,
	EventDocumentReuploaded: CategoryOperations,
	EventDocumentDownloaded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
