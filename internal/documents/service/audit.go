package service

import (
	"context"
	"log/slog"

	"intake/internal/documents/models"
	"intake/pkg/attrs"
	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
	"intake/pkg/requestcontext"
)

// auditEmitter logs each audited action and forwards it to the publisher,
// enriched with request metadata. Publishing failures are logged only: the
// transition they describe has already committed.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emitApplicationCreated(ctx context.Context, app *models.Application) {
	e.emit(ctx, audit.EventApplicationCreated, app.ID,
		"application_number", app.Number,
		"required_documents", len(app.RequiredDocuments),
	)
}

func (e *auditEmitter) emitDocument(ctx context.Context, event audit.AuditEvent, rec *models.DocumentRecord) {
	e.emit(ctx, event, rec.ApplicationID,
		"document_type", rec.Type,
		"status", string(rec.Status),
		"notes", rec.VerificationNotes,
	)
}

func (e *auditEmitter) emit(ctx context.Context, event audit.AuditEvent, appID id.ApplicationID, attributes ...any) {
	actor, _ := requestcontext.Actor(ctx)
	requestID := requestcontext.RequestID(ctx)

	args := append([]any{
		"event", string(event),
		"log_type", "audit",
		"application_id", appID.String(),
		"actor", actor.Subject,
	}, attributes...)
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if e.logger != nil {
		e.logger.InfoContext(ctx, string(event), args...)
	}
	if e.publisher == nil {
		return
	}

	err := e.publisher.Emit(ctx, audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		ApplicationID: appID,
		Subject:       attrs.ExtractString(attributes, "document_type"),
		Action:        string(event),
		Decision:      attrs.ExtractString(attributes, "status"),
		Reason:        attrs.ExtractString(attributes, "notes"),
		RequestID:     requestID,
		ActorID:       actor.Subject,
		ClientIP:      requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgent(ctx),
	})
	if err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "failed to publish audit event",
			"event", string(event),
			"application_id", appID.String(),
			"error", err,
		)
	}
}
