package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"intake/internal/blob"
	"intake/internal/documents/models"
	"intake/internal/documents/service"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/httputil"
	"intake/pkg/platform/middleware/auth"
	"intake/pkg/requestcontext"
)

const fileField = "file"

type VerificationService interface {
	CreateApplication(ctx context.Context, req service.CreateApplicationRequest) (*models.Application, error)
	Verify(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, reviewer models.Reviewer, notes string) (*models.DocumentRecord, error)
	Reject(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, reviewer models.Reviewer, notes string) (*models.DocumentRecord, error)
}

type UploadService interface {
	Policy() models.UploadPolicy
	Upload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, upload models.Upload) (*models.DocumentRecord, error)
	Reupload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, upload models.Upload) (*models.DocumentRecord, error)
	CheckUpload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) error
	CheckReupload(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) error
	Download(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) (*models.DocumentRecord, *blob.Object, error)
}

type StatusService interface {
	GetStatus(ctx context.Context, appID id.ApplicationID) (*models.ApplicationStatus, error)
	LookupByNumber(ctx context.Context, number string) (*models.ApplicationStatus, error)
	ReviewQueue(ctx context.Context, limit int) ([]*models.DocumentRecord, error)
}

type SummaryService interface {
	Summarize(ctx context.Context, appID id.ApplicationID) (models.VerificationSummary, error)
}

// Handler exposes the document lifecycle over HTTP. Callers are expected to
// carry an identity in the request context; reviewer-only routes check the role.
type Handler struct {
	logger       *slog.Logger
	verification VerificationService
	uploads      UploadService
	status       StatusService
	summaries    SummaryService
}

func New(verification VerificationService, uploads UploadService, status StatusService, summaries SummaryService, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		verification: verification,
		uploads:      uploads,
		status:       status,
		summaries:    summaries,
	}
}

// Register mounts the document routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.HandleCreateApplication)
	r.Get("/applications/by-number/{applicationNumber}", h.HandleLookupByNumber)

	r.Route("/applications/{applicationID}", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)
		r.Get("/summary", h.HandleGetSummary)

		r.Route("/documents/{documentType}", func(r chi.Router) {
			r.Post("/submit", h.HandleSubmit)
			r.Post("/reupload", h.HandleReupload)
			r.Get("/file", h.HandleDownload)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireReviewer(h.logger))
				r.Post("/verify", h.HandleVerify)
				r.Post("/reject", h.HandleReject)
			})
		})
	})

	r.With(auth.RequireReviewer(h.logger)).Get("/review/pending", h.HandleReviewQueue)
}

func (h *Handler) HandleCreateApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateApplicationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	app, err := h.verification.CreateApplication(ctx, service.CreateApplicationRequest{
		Applicant:         req.applicant,
		RequiredDocuments: req.required,
	})
	if err != nil {
		h.writeError(ctx, w, "failed to create application", err)
		return
	}
	h.logger.InfoContext(ctx, "application created",
		"request_id", requestID,
		"application_id", app.ID.String(),
		"application_number", app.Number,
	)
	httputil.WriteJSON(w, http.StatusCreated, app)
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	st, err := h.status.GetStatus(ctx, appID)
	if err != nil {
		h.writeError(ctx, w, "failed to load application status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleLookupByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	number := strings.TrimSpace(chi.URLParam(r, "applicationNumber"))
	if number == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "application number is required"))
		return
	}
	st, err := h.status.LookupByNumber(ctx, number)
	if err != nil {
		h.writeError(ctx, w, "failed to look up application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.summaries.Summarize(ctx, appID)
	if err != nil {
		h.writeError(ctx, w, "failed to summarize application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleFile(w, r, "submit", h.uploads.CheckUpload, h.uploads.Upload)
}

func (h *Handler) HandleReupload(w http.ResponseWriter, r *http.Request) {
	h.handleFile(w, r, "reupload", h.uploads.CheckReupload, h.uploads.Reupload)
}

type (
	fileCheck func(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) error
	fileOp    func(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, upload models.Upload) (*models.DocumentRecord, error)
)

// handleFile refuses ineligible records before the body is read, so a status
// conflict is reported as such whatever the size of the upload.
func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request, action string, check fileCheck, op fileOp) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	appID, docType, err := documentKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := check(ctx, appID, docType); err != nil {
		h.writeError(ctx, w, "failed to "+action+" document", err,
			"application_id", appID.String(),
			"document_type", string(docType),
		)
		return
	}
	upload, err := h.readUpload(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid upload",
			"request_id", requestID,
			"application_id", appID.String(),
			"document_type", string(docType),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	rec, err := op(ctx, appID, docType, upload)
	if err != nil {
		h.writeError(ctx, w, "failed to "+action+" document", err,
			"application_id", appID.String(),
			"document_type", string(docType),
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "verify", h.verification.Verify)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "reject", h.verification.Reject)
}

type decisionOp func(ctx context.Context, appID id.ApplicationID, docType models.DocumentType, reviewer models.Reviewer, notes string) (*models.DocumentRecord, error)

// handleDecision accepts an empty body as empty notes: verify succeeds without
// them and reject answers missing_reason from the service.
func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, action string, op decisionOp) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	appID, docType, err := documentKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeOptionalAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	actor, _ := requestcontext.Actor(ctx)
	reviewer := models.Reviewer{ID: actor.Subject, DisplayName: actor.DisplayName}

	rec, err := op(ctx, appID, docType, reviewer, req.Notes)
	if err != nil {
		h.writeError(ctx, w, "failed to "+action+" document", err,
			"application_id", appID.String(),
			"document_type", string(docType),
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, docType, err := documentKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, obj, err := h.uploads.Download(ctx, appID, docType)
	if err != nil {
		h.writeError(ctx, w, "failed to download document", err,
			"application_id", appID.String(),
			"document_type", string(docType),
		)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	if rec.OriginalFileName != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+sanitizeFileName(rec.OriginalFileName)+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

func (h *Handler) HandleReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	records, err := h.status.ReviewQueue(ctx, limit)
	if err != nil {
		h.writeError(ctx, w, "failed to list review queue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": records})
}

// readUpload reads the single file part. Bodies beyond the policy cap are
// reported as file_too_large without reading further.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (models.Upload, error) {
	policy := h.uploads.Policy()
	r.Body = http.MaxBytesReader(w, r.Body, policy.MaxBytesWithSlack())

	mr, err := r.MultipartReader()
	if err != nil {
		return models.Upload{}, dErrors.New(dErrors.CodeBadRequest, "multipart/form-data body required")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return models.Upload{}, dErrors.New(dErrors.CodeBadRequest, "missing "+fileField+" field")
		}
		if err != nil {
			return models.Upload{}, uploadReadErr(err)
		}
		if part.FormName() != fileField {
			_ = part.Close()
			continue
		}
		return readPart(part)
	}
}

func readPart(part *multipart.Part) (models.Upload, error) {
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		return models.Upload{}, uploadReadErr(err)
	}
	return models.Upload{
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func uploadReadErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.Wrap(err, dErrors.CodeFileTooLarge, "file exceeds the upload limit")
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed multipart body")
}

func documentKey(r *http.Request) (id.ApplicationID, models.DocumentType, error) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		return id.ApplicationID{}, "", err
	}
	docType, err := models.ParseDocumentType(chi.URLParam(r, "documentType"))
	if err != nil {
		return id.ApplicationID{}, "", err
	}
	return appID, docType, nil
}

// writeError logs at a level matching the error kind and writes the response.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, msg, args...)
	case dErrors.CodeStorageUnavailable, dErrors.CodeTimeout:
		h.logger.WarnContext(ctx, msg, args...)
	default:
		h.logger.InfoContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
}
