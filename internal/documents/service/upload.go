package service

import (
	"context"
	"time"

	"intake/internal/blob"
	"intake/internal/documents/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
)

const (
	actionSubmit   = "submit"
	actionReupload = "reupload"
)

// UploadService moves file bytes: it applies the upload policy, writes the
// blob and then hands the stored file to the state machine. The blob is
// written before the transition commits; a blob orphaned by a refused
// transition is left in storage.
type UploadService struct {
	store        DocumentStore
	blobs        BlobStorage
	verification *VerificationService
	*serviceConfig
	audit *auditEmitter
}

func NewUploadService(store DocumentStore, blobs BlobStorage, verification *VerificationService, opts ...Option) *UploadService {
	cfg := newConfig(opts)
	return &UploadService{
		store:         store,
		blobs:         blobs,
		verification:  verification,
		serviceConfig: cfg,
		audit:         newAuditEmitter(cfg.logger, cfg.auditPublisher),
	}
}

// Policy exposes the active upload policy so the HTTP edge can cap request bodies.
func (s *UploadService) Policy() models.UploadPolicy {
	return *s.policy
}

// Upload stores a first (or post-rejection) file and submits it for review.
func (s *UploadService) Upload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, upload models.Upload) (*models.DocumentRecord, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "documents.upload", appID, docType)
	defer span.End()
	defer s.observe("upload", start)

	if err := s.precheck(ctx, appID, docType, actionSubmit); err != nil {
		return nil, s.fail(span, err)
	}
	file, err := s.storeFile(ctx, upload)
	if err != nil {
		s.verification.refused(actionSubmit, err)
		return nil, s.fail(span, err)
	}
	return s.verification.Submit(ctx, appID, docType, file)
}

// Reupload replaces the file of a rejected document. The status check comes
// first, then the file policy, so neither a policy failure nor a storage
// failure ever touches the record.
func (s *UploadService) Reupload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, upload models.Upload) (*models.DocumentRecord, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "documents.reupload_file", appID, docType)
	defer span.End()
	defer s.observe("reupload_file", start)

	if err := s.precheck(ctx, appID, docType, actionReupload); err != nil {
		return nil, s.fail(span, err)
	}
	file, err := s.storeFile(ctx, upload)
	if err != nil {
		s.verification.refused(actionReupload, err)
		return nil, s.fail(span, err)
	}
	return s.verification.resubmit(ctx, appID, docType, file)
}

// Download returns the record and its stored file.
func (s *UploadService) Download(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) (*models.DocumentRecord, *blob.Object, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "documents.download", appID, docType)
	defer span.End()
	defer s.observe("download", start)

	if err := authorizeApplicationID(ctx, s.store, appID); err != nil {
		return nil, nil, s.fail(span, err)
	}
	rec, err := s.store.Get(ctx, appID, docType)
	if err != nil {
		return nil, nil, s.fail(span, wrapStoreErr(err, "document not found"))
	}
	if rec.FileRef == "" {
		return nil, nil, s.fail(span, dErrors.New(dErrors.CodeNotFound, "no file uploaded for "+string(docType)))
	}
	obj, err := s.blobs.Fetch(ctx, string(rec.FileRef))
	if err != nil {
		return nil, nil, s.fail(span, wrapBlobErr(err, "failed to fetch document file"))
	}
	s.audit.emitDocument(ctx, audit.EventDocumentDownloaded, rec)
	return rec, obj, nil
}

// CheckUpload reports whether Upload would accept a file for the record right
// now, so the HTTP edge can refuse before reading the request body.
func (s *UploadService) CheckUpload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) error {
	return s.precheck(ctx, appID, docType, actionSubmit)
}

// CheckReupload is CheckUpload for Reupload.
func (s *UploadService) CheckReupload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) error {
	return s.precheck(ctx, appID, docType, actionReupload)
}

// precheck applies ownership and the current-status rule for action. The
// transition re-checks status under the store lock.
func (s *UploadService) precheck(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, action string) error {
	if err := authorizeApplicationID(ctx, s.store, appID); err != nil {
		return err
	}
	current, err := s.store.Get(ctx, appID, docType)
	if err != nil {
		return wrapStoreErr(err, "document not found")
	}
	check := current.CanSubmit
	if action == actionReupload {
		check = current.CanReupload
	}
	if err := check(); err != nil {
		s.verification.refused(action, err)
		return err
	}
	return nil
}

func (s *UploadService) storeFile(ctx context.Context, upload models.Upload) (models.StoredFile, error) {
	contentType, err := s.policy.Validate(upload)
	if err != nil {
		return models.StoredFile{}, err
	}
	ref, err := s.blobs.Store(ctx, upload.Data, contentType)
	if err != nil {
		s.logger.WarnContext(ctx, "blob store failed", "error", err)
		return models.StoredFile{}, wrapBlobErr(err, "file storage is unavailable")
	}
	if s.metrics != nil {
		s.metrics.ObserveUploadBytes(upload.Size())
	}
	return models.StoredFile{
		Ref:              models.FileRef(ref),
		OriginalFileName: upload.FileName,
		ContentType:      contentType,
		SizeBytes:        upload.Size(),
	}, nil
}
