package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"intake/internal/blob"
	docmetrics "intake/internal/documents/metrics"
	"intake/internal/documents/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks DocumentStore,BlobStorage,AuditPublisher

// DocumentStore persists applications and their document records.
type DocumentStore interface {
	CreateApplication(ctx context.Context, app *models.Application, records []*models.DocumentRecord) error
	FindApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	FindApplicationByNumber(ctx context.Context, number string) (*models.Application, error)
	Get(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) (*models.DocumentRecord, error)
	ListForApplication(ctx context.Context, appID id.ApplicationID) ([]*models.DocumentRecord, error)
	Execute(ctx context.Context, appID id.ApplicationID, docType models.DocumentType,
		validate func(*models.DocumentRecord) error, mutate func(*models.DocumentRecord)) (*models.DocumentRecord, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.DocumentRecord, error)
}

// BlobStorage stores and retrieves uploaded files.
type BlobStorage interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, ref string) (*blob.Object, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TxRunner runs fn inside a transaction carried by the context it passes on.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const tracerName = "intake/internal/documents/service"

type serviceConfig struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *docmetrics.Metrics
	tracer         trace.Tracer
	policy         *models.UploadPolicy
	required       []models.DocumentType
	tx             TxRunner
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.auditPublisher = publisher
	}
}

func WithMetrics(m *docmetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *serviceConfig) {
		c.tracer = t
	}
}

// WithUploadPolicy replaces the default pdf/jpg/jpeg/png, 10 MiB policy.
func WithUploadPolicy(p models.UploadPolicy) Option {
	return func(c *serviceConfig) {
		c.policy = &p
	}
}

// WithDefaultRequiredDocuments sets the document types new applications require
// when the caller does not choose a subset.
func WithDefaultRequiredDocuments(types []models.DocumentType) Option {
	return func(c *serviceConfig) {
		c.required = types
	}
}

// WithTxRunner makes each write and its audit event share one transaction.
func WithTxRunner(tx TxRunner) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}

func newConfig(opts []Option) *serviceConfig {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}
	if cfg.policy == nil {
		p := models.DefaultUploadPolicy()
		cfg.policy = &p
	}
	return cfg
}

func (c *serviceConfig) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.tx == nil {
		return fn(ctx)
	}
	return c.tx.RunInTx(ctx, fn)
}

// wrapStoreErr translates store sentinels into domain errors. Domain errors
// raised inside Execute's validate pass through unchanged.
func wrapStoreErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// wrapBlobErr translates blob storage failures. Any failure to store is
// reported as storage_unavailable so the caller may retry.
func wrapBlobErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, msg)
	}
}
