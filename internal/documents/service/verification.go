package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"intake/internal/documents/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/requestcontext"
)

const numberAttempts = 3

// VerificationService owns the document state machine: application creation,
// submission and the reviewer decisions. Every transition is one atomic
// read-validate-mutate-write through the store's Execute.
type VerificationService struct {
	store DocumentStore
	*serviceConfig
	audit *auditEmitter
}

func NewVerificationService(store DocumentStore, opts ...Option) *VerificationService {
	cfg := newConfig(opts)
	return &VerificationService{
		store:         store,
		serviceConfig: cfg,
		audit:         newAuditEmitter(cfg.logger, cfg.auditPublisher),
	}
}

// CreateApplicationRequest carries the intake data for a new application.
// An empty RequiredDocuments selects the configured default set.
type CreateApplicationRequest struct {
	Applicant         models.Applicant
	RequiredDocuments []models.DocumentType
}

// CreateApplication registers the application and all its required records
// as not_uploaded in a single write. The application number is generated and
// regenerated on collision.
func (s *VerificationService) CreateApplication(ctx context.Context, req CreateApplicationRequest) (*models.Application, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "documents.CreateApplication")
	defer span.End()
	defer s.observe("create_application", start)

	if err := authorizeApplicantID(ctx, req.Applicant.ID); err != nil {
		return nil, s.fail(span, err)
	}
	required := req.RequiredDocuments
	if len(required) == 0 {
		required = s.required
	}
	now := requestcontext.Now(ctx)

	var lastErr error
	for range numberAttempts {
		number, err := newApplicationNumber(now)
		if err != nil {
			return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate application number"))
		}
		app, err := models.NewApplication(id.NewApplicationID(), number, req.Applicant, required, now)
		if err != nil {
			return nil, s.fail(span, err)
		}
		err = s.inTx(ctx, func(ctx context.Context) error {
			if err := s.store.CreateApplication(ctx, app, app.NewRecords(now)); err != nil {
				return err
			}
			s.audit.emitApplicationCreated(ctx, app)
			return nil
		})
		if err == nil {
			span.SetAttributes(attribute.String("application_id", app.ID.String()))
			if s.metrics != nil {
				s.metrics.IncApplicationCreated()
			}
			return app, nil
		}
		lastErr = err
		if !dErrors.HasCode(wrapStoreErr(err, ""), dErrors.CodeConflict) {
			break
		}
		s.logger.WarnContext(ctx, "application number collision, retrying", "application_number", number)
	}
	return nil, s.fail(span, wrapStoreErr(lastErr, "failed to create application"))
}

// Submit attaches an already stored file and moves the record to pending.
// Legal from not_uploaded and rejected only.
func (s *VerificationService) Submit(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, file models.StoredFile) (*models.DocumentRecord, error) {
	return s.submit(ctx, "submit", audit.EventDocumentSubmitted, appID, docType, file,
		func(r *models.DocumentRecord) error { return r.CanSubmit() })
}

// resubmit is the reupload path: the rejected-only rule is re-checked under the
// record lock so a concurrent or retried reupload fails cleanly.
func (s *VerificationService) resubmit(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, file models.StoredFile) (*models.DocumentRecord, error) {
	return s.submit(ctx, "reupload", audit.EventDocumentReuploaded, appID, docType, file,
		func(r *models.DocumentRecord) error {
			if err := r.CanReupload(); err != nil {
				return err
			}
			return r.CanSubmit()
		})
}

func (s *VerificationService) submit(ctx context.Context, action string, event audit.AuditEvent,
	appID id.ApplicationID, docType models.DocumentType, file models.StoredFile,
	validate func(*models.DocumentRecord) error,
) (*models.DocumentRecord, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "documents."+action, appID, docType)
	defer span.End()
	defer s.observe(action, start)

	if file.Ref == "" {
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, "file reference is required"))
	}
	now := requestcontext.Now(ctx)
	return s.transition(ctx, span, action, event, appID, docType, validate, func(r *models.DocumentRecord) {
		r.ApplySubmit(file, now)
	})
}

// Verify accepts a pending document. Notes are optional.
func (s *VerificationService) Verify(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, reviewer models.Reviewer, notes string) (*models.DocumentRecord, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "documents.verify", appID, docType)
	defer span.End()
	defer s.observe("verify", start)

	if err := validateReviewer(reviewer); err != nil {
		return nil, s.fail(span, err)
	}
	now := requestcontext.Now(ctx)
	return s.transition(ctx, span, "verify", audit.EventDocumentVerified, appID, docType,
		func(r *models.DocumentRecord) error { return r.CanVerify() },
		func(r *models.DocumentRecord) { r.ApplyVerify(reviewer, notes, now) },
	)
}

// Reject rejects a pending document. Blank notes fail with missing_reason
// before the record is read, so the status is untouched whatever it was.
func (s *VerificationService) Reject(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, reviewer models.Reviewer, notes string) (*models.DocumentRecord, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "documents.reject", appID, docType)
	defer span.End()
	defer s.observe("reject", start)

	if strings.TrimSpace(notes) == "" {
		err := dErrors.New(dErrors.CodeMissingReason, "rejection requires notes")
		s.refused("reject", err)
		return nil, s.fail(span, err)
	}
	if err := validateReviewer(reviewer); err != nil {
		return nil, s.fail(span, err)
	}
	now := requestcontext.Now(ctx)
	return s.transition(ctx, span, "reject", audit.EventDocumentRejected, appID, docType,
		func(r *models.DocumentRecord) error { return r.CanReject(notes) },
		func(r *models.DocumentRecord) { r.ApplyReject(reviewer, notes, now) },
	)
}

// transition applies one state change through the store and audits it.
func (s *VerificationService) transition(ctx context.Context, span trace.Span, action string, event audit.AuditEvent,
	appID id.ApplicationID, docType models.DocumentType,
	validate func(*models.DocumentRecord) error, mutate func(*models.DocumentRecord),
) (*models.DocumentRecord, error) {
	var rec *models.DocumentRecord
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.Execute(ctx, appID, docType, validate, mutate)
		if err != nil {
			return err
		}
		s.audit.emitDocument(ctx, event, rec)
		return nil
	})
	if err != nil {
		s.refused(action, err)
		return nil, s.fail(span, wrapStoreErr(err, "failed to "+action+" document"))
	}
	if s.metrics != nil {
		s.metrics.IncTransition(action, string(rec.Type))
	}
	return rec, nil
}

func (s *VerificationService) refused(action string, err error) {
	if s.metrics != nil {
		s.metrics.IncRefused(action, string(dErrors.CodeOf(wrapStoreErr(err, ""))))
	}
}

func (s *serviceConfig) startSpan(ctx context.Context, name string, appID id.ApplicationID, docType models.DocumentType) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("application_id", appID.String()),
		attribute.String("document_type", string(docType)),
	))
}

func (s *serviceConfig) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		s.logger.Error("document operation failed", "error", err)
	}
	return err
}

func (s *serviceConfig) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func validateReviewer(reviewer models.Reviewer) error {
	if strings.TrimSpace(reviewer.ID) == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "reviewer identity is required")
	}
	return nil
}

// newApplicationNumber returns ADM-<year>-<8 hex>.
func newApplicationNumber(now time.Time) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("ADM-%d-%s", now.Year(), strings.ToUpper(hex.EncodeToString(b[:]))), nil
}
