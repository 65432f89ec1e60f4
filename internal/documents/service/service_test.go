package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"intake/internal/blob"
	docmetrics "intake/internal/documents/metrics"
	"intake/internal/documents/models"
	"intake/internal/documents/store"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/audit/publisher"
	auditmemory "intake/pkg/platform/audit/store/memory"
	"intake/pkg/requestcontext"
)

var (
	pdfContent = append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 64)...)
	pngContent = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
)

func pdfUpload(name string) models.Upload {
	return models.Upload{FileName: name, ContentType: "application/pdf", Data: pdfContent}
}

type DocumentServiceSuite struct {
	suite.Suite
	ctx          context.Context
	now          time.Time
	store        *store.InMemory
	blobs        *blob.InMemory
	auditStore   *auditmemory.InMemoryStore
	verification *VerificationService
	uploads      *UploadService
	summaries    *SummaryService
	status       *StatusService
	reviewer     models.Reviewer
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithRequestID(s.ctx, "req-1")
	s.ctx = requestcontext.WithActor(s.ctx, requestcontext.Identity{Subject: "staff-1", Role: requestcontext.RoleReviewer})

	s.store = store.NewInMemory()
	s.blobs = blob.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	opts := []Option{
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithMetrics(docmetrics.NewWithRegisterer(prometheus.NewRegistry())),
	}
	s.verification = NewVerificationService(s.store, opts...)
	s.uploads = NewUploadService(s.store, s.blobs, s.verification, opts...)
	s.summaries = NewSummaryService(s.store, opts...)
	s.status = NewStatusService(s.store, opts...)
	s.reviewer = models.Reviewer{ID: "staff-1", DisplayName: "A. Reviewer"}
}

func (s *DocumentServiceSuite) newApplication(required ...models.DocumentType) *models.Application {
	app, err := s.verification.CreateApplication(s.ctx, CreateApplicationRequest{
		Applicant: models.Applicant{
			ID:       id.ApplicantID(uuid.New()),
			FullName: "Ada Okafor",
			Email:    "ada@example.org",
			Program:  "BSc Physics",
		},
		RequiredDocuments: required,
	})
	s.Require().NoError(err)
	return app
}

func (s *DocumentServiceSuite) uploadAndReject(app *models.Application, docType models.DocumentType) {
	_, err := s.uploads.Upload(s.ctx, app.ID, docType, pdfUpload("doc.pdf"))
	s.Require().NoError(err)
	_, err = s.verification.Reject(s.ctx, app.ID, docType, s.reviewer, "illegible")
	s.Require().NoError(err)
}

func (s *DocumentServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), "error: %v", err)
}

func (s *DocumentServiceSuite) TestCreateApplication() {
	s.Run("creates every required record as not uploaded", func() {
		app := s.newApplication()
		s.Regexp(`^ADM-2026-[0-9A-F]{8}$`, app.Number)

		st, err := s.status.GetStatus(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Require().Len(st.Documents, 8)
		for i, rec := range st.Documents {
			s.Equal(models.AllDocumentTypes()[i], rec.Type)
			s.Equal(models.StatusNotUploaded, rec.Status)
			s.Empty(rec.FileRef)
			s.Nil(rec.VerifiedAt)
			s.Nil(rec.VerifiedBy)
		}
	})

	s.Run("honours a required subset in canonical order", func() {
		app := s.newApplication(models.DocumentTypeSignature, models.DocumentTypeIdentityProof)
		s.Equal([]models.DocumentType{models.DocumentTypeIdentityProof, models.DocumentTypeSignature}, app.RequiredDocuments)

		_, err := s.store.Get(s.ctx, app.ID, models.DocumentTypePhoto)
		s.Error(err)
	})

	s.Run("rejects invalid applicant", func() {
		_, err := s.verification.CreateApplication(s.ctx, CreateApplicationRequest{
			Applicant: models.Applicant{ID: id.ApplicantID(uuid.New())},
		})
		s.requireCode(err, dErrors.CodeInvariantViolation)
	})

	s.Run("emits application created audit event", func() {
		app := s.newApplication()
		events, err := s.auditStore.ListByApplication(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventApplicationCreated), events[0].Action)
		s.Equal("req-1", events[0].RequestID)
	})
}

func (s *DocumentServiceSuite) TestSubmit() {
	s.Run("not uploaded to pending", func() {
		app := s.newApplication()
		rec, err := s.uploads.Upload(s.ctx, app.ID, models.DocumentTypeIdentityProof, pdfUpload("passport.pdf"))
		s.Require().NoError(err)
		s.Equal(models.StatusPending, rec.Status)
		s.Equal(models.FileRef(blob.ContentRef(pdfContent)), rec.FileRef)
		s.Equal("passport.pdf", rec.OriginalFileName)
		s.Equal("application/pdf", rec.ContentType)
		s.Require().NotNil(rec.UploadedAt)
		s.True(rec.UploadedAt.Equal(s.now))
		s.Equal(1, s.blobs.Len())
	})

	s.Run("refused while pending", func() {
		app := s.newApplication()
		_, err := s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.Require().NoError(err)

		_, err = s.verification.Submit(s.ctx, app.ID, models.DocumentTypePhoto, models.StoredFile{Ref: "blob:other"})
		s.requireCode(err, dErrors.CodeInvalidTransition)
	})

	s.Run("refused once verified", func() {
		app := s.newApplication()
		_, err := s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.Require().NoError(err)
		_, err = s.verification.Verify(s.ctx, app.ID, models.DocumentTypePhoto, s.reviewer, "")
		s.Require().NoError(err)

		_, err = s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("b.pdf"))
		s.requireCode(err, dErrors.CodeInvalidTransition)
	})

	s.Run("allowed from rejected and clears verification", func() {
		app := s.newApplication()
		s.uploadAndReject(app, models.DocumentTypePhoto)

		rec, err := s.verification.Submit(s.ctx, app.ID, models.DocumentTypePhoto, models.StoredFile{Ref: "blob:new", OriginalFileName: "new.pdf"})
		s.Require().NoError(err)
		s.Equal(models.StatusPending, rec.Status)
		s.Nil(rec.VerifiedAt)
		s.Nil(rec.VerifiedBy)
		s.Empty(rec.VerificationNotes)
	})

	s.Run("unknown application is not found", func() {
		_, err := s.uploads.Upload(s.ctx, id.NewApplicationID(), models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("unsupported file type stores nothing", func() {
		app := s.newApplication()
		before := s.blobs.Len()
		_, err := s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, models.Upload{FileName: "x.gif", Data: []byte("GIF89a....")})
		s.requireCode(err, dErrors.CodeUnsupportedFileType)
		s.Equal(before, s.blobs.Len())
	})
}

func (s *DocumentServiceSuite) TestVerify() {
	s.Run("pending to verified with reviewer stamp", func() {
		app := s.newApplication()
		_, err := s.uploads.Upload(s.ctx, app.ID, models.DocumentTypeSignature, pdfUpload("sig.pdf"))
		s.Require().NoError(err)

		rec, err := s.verification.Verify(s.ctx, app.ID, models.DocumentTypeSignature, s.reviewer, "looks good")
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, rec.Status)
		s.Require().NotNil(rec.VerifiedBy)
		s.Equal(s.reviewer, *rec.VerifiedBy)
		s.Equal("looks good", rec.VerificationNotes)
		s.NoError(rec.CheckInvariants())
	})

	s.Run("refused from not uploaded", func() {
		app := s.newApplication()
		_, err := s.verification.Verify(s.ctx, app.ID, models.DocumentTypeSignature, s.reviewer, "")
		s.requireCode(err, dErrors.CodeInvalidTransition)
	})

	s.Run("requires reviewer identity", func() {
		app := s.newApplication()
		_, err := s.verification.Verify(s.ctx, app.ID, models.DocumentTypeSignature, models.Reviewer{}, "")
		s.requireCode(err, dErrors.CodeUnauthorized)
	})
}

func (s *DocumentServiceSuite) TestReject() {
	s.Run("blank notes fail before the record is read", func() {
		for _, notes := range []string{"", "   "} {
			_, err := s.verification.Reject(s.ctx, id.NewApplicationID(), models.DocumentTypePhoto, s.reviewer, notes)
			s.requireCode(err, dErrors.CodeMissingReason)
		}
	})

	s.Run("blank notes leave status unchanged", func() {
		app := s.newApplication()
		_, err := s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.Require().NoError(err)

		_, err = s.verification.Reject(s.ctx, app.ID, models.DocumentTypePhoto, s.reviewer, "")
		s.requireCode(err, dErrors.CodeMissingReason)

		rec, err := s.store.Get(s.ctx, app.ID, models.DocumentTypePhoto)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, rec.Status)
	})

	s.Run("pending to rejected with notes", func() {
		app := s.newApplication()
		s.uploadAndReject(app, models.DocumentTypePhoto)
		rec, err := s.store.Get(s.ctx, app.ID, models.DocumentTypePhoto)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rec.Status)
		s.Equal("illegible", rec.VerificationNotes)
	})

	s.Run("second rejection overwrites notes", func() {
		app := s.newApplication()
		s.uploadAndReject(app, models.DocumentTypePhoto)
		_, err := s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("again.pdf"))
		s.Require().NoError(err)

		rec, err := s.verification.Reject(s.ctx, app.ID, models.DocumentTypePhoto, s.reviewer, "wrong person")
		s.Require().NoError(err)
		s.Equal("wrong person", rec.VerificationNotes)
	})

	s.Run("rejected document cannot be rejected again", func() {
		app := s.newApplication()
		s.uploadAndReject(app, models.DocumentTypePhoto)
		_, err := s.verification.Reject(s.ctx, app.ID, models.DocumentTypePhoto, s.reviewer, "again")
		s.requireCode(err, dErrors.CodeInvalidTransition)
	})
}

func (s *DocumentServiceSuite) TestReupload() {
	s.Run("only rejected documents are eligible", func() {
		app := s.newApplication()
		_, err := s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.requireCode(err, dErrors.CodeNotEligibleForReupload)

		_, err = s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.Require().NoError(err)
		_, err = s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.requireCode(err, dErrors.CodeNotEligibleForReupload)

		_, err = s.verification.Verify(s.ctx, app.ID, models.DocumentTypePhoto, s.reviewer, "")
		s.Require().NoError(err)
		_, err = s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.requireCode(err, dErrors.CodeNotEligibleForReupload)
	})

	s.Run("rejected to pending with the new file", func() {
		app := s.newApplication()
		s.uploadAndReject(app, models.DocumentTypeMedicalCertificate)

		upload := models.Upload{FileName: "scan.png", ContentType: "image/png", Data: pngContent}
		rec, err := s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypeMedicalCertificate, upload)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, rec.Status)
		s.Equal(models.FileRef(blob.ContentRef(pngContent)), rec.FileRef)
		s.Equal("scan.png", rec.OriginalFileName)
		s.Equal("image/png", rec.ContentType)
		s.Nil(rec.VerifiedAt)
		s.Empty(rec.VerificationNotes)
	})

	s.Run("retry after success is not eligible", func() {
		app := s.newApplication()
		s.uploadAndReject(app, models.DocumentTypePhoto)
		_, err := s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.Require().NoError(err)
		_, err = s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.requireCode(err, dErrors.CodeNotEligibleForReupload)
	})

	s.Run("twelve megabyte pdf is too large and leaves record untouched", func() {
		app := s.newApplication()
		s.uploadAndReject(app, models.DocumentTypeEntranceResult)
		before, err := s.store.Get(s.ctx, app.ID, models.DocumentTypeEntranceResult)
		s.Require().NoError(err)
		blobsBefore := s.blobs.Len()

		big := append([]byte("%PDF-1.7\n"), make([]byte, 12<<20)...)
		_, err = s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypeEntranceResult,
			models.Upload{FileName: "result.pdf", ContentType: "application/pdf", Data: big})
		s.requireCode(err, dErrors.CodeFileTooLarge)

		after, err := s.store.Get(s.ctx, app.ID, models.DocumentTypeEntranceResult)
		s.Require().NoError(err)
		s.Equal(before, after)
		s.Equal(models.StatusRejected, after.Status)
		s.Equal(blobsBefore, s.blobs.Len())
	})

	s.Run("emits reuploaded audit event", func() {
		app := s.newApplication(models.DocumentTypePhoto)
		s.uploadAndReject(app, models.DocumentTypePhoto)
		_, err := s.uploads.Reupload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.Require().NoError(err)

		events, err := s.auditStore.ListByApplication(s.ctx, app.ID)
		s.Require().NoError(err)
		actions := make([]string, 0, len(events))
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		s.Equal([]string{
			string(audit.EventApplicationCreated),
			string(audit.EventDocumentSubmitted),
			string(audit.EventDocumentRejected),
			string(audit.EventDocumentReuploaded),
		}, actions)
		s.Equal(audit.CategoryCompliance, events[2].Category)
		s.Equal("illegible", events[2].Reason)
	})
}

func (s *DocumentServiceSuite) TestDownload() {
	app := s.newApplication()

	_, _, err := s.uploads.Download(s.ctx, app.ID, models.DocumentTypePhoto)
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
	s.Require().NoError(err)
	rec, obj, err := s.uploads.Download(s.ctx, app.ID, models.DocumentTypePhoto)
	s.Require().NoError(err)
	s.Equal("a.pdf", rec.OriginalFileName)
	s.Equal(pdfContent, obj.Data)
	s.Equal("application/pdf", obj.ContentType)
}

func (s *DocumentServiceSuite) TestSummaryAndStatus() {
	s.Run("eight type scenario", func() {
		app := s.newApplication()
		types := models.AllDocumentTypes()
		for _, t := range types[:6] {
			_, err := s.uploads.Upload(s.ctx, app.ID, t, pdfUpload(string(t)+".pdf"))
			s.Require().NoError(err)
		}
		for _, t := range types[:5] {
			_, err := s.verification.Verify(s.ctx, app.ID, t, s.reviewer, "")
			s.Require().NoError(err)
		}
		_, err := s.verification.Reject(s.ctx, app.ID, types[5], s.reviewer, "expired")
		s.Require().NoError(err)

		summary, err := s.summaries.Summarize(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.VerificationSummary{
			Total:                8,
			Uploaded:             6,
			Verified:             5,
			Rejected:             1,
			Pending:              0,
			NotUploaded:          2,
			CompletionPercentage: 62,
			OverallStatus:        models.StatusRejected,
		}, summary)
	})

	s.Run("status is idempotent", func() {
		app := s.newApplication()
		_, err := s.uploads.Upload(s.ctx, app.ID, models.DocumentTypePhoto, pdfUpload("a.pdf"))
		s.Require().NoError(err)

		first, err := s.status.GetStatus(s.ctx, app.ID)
		s.Require().NoError(err)
		second, err := s.status.GetStatus(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(first, second)
		s.Equal(models.StatusPending, first.Summary.OverallStatus)
	})

	s.Run("unknown application is not found", func() {
		_, err := s.status.GetStatus(s.ctx, id.NewApplicationID())
		s.requireCode(err, dErrors.CodeNotFound)
		_, err = s.summaries.Summarize(s.ctx, id.NewApplicationID())
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *DocumentServiceSuite) TestReviewQueue() {
	app := s.newApplication()
	for i, t := range []models.DocumentType{models.DocumentTypeSignature, models.DocumentTypePhoto} {
		ctx := requestcontext.WithTime(s.ctx, s.now.Add(time.Duration(i)*time.Minute))
		_, err := s.uploads.Upload(ctx, app.ID, t, pdfUpload("a.pdf"))
		s.Require().NoError(err)
	}

	queue, err := s.status.ReviewQueue(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(queue, 2)
	s.Equal(models.DocumentTypeSignature, queue[0].Type)

	queue, err = s.status.ReviewQueue(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(queue, 1)
}

func TestWrapStoreErrKeepsDomainCodes(t *testing.T) {
	domainErr := dErrors.New(dErrors.CodeMissingReason, "x")
	if got := wrapStoreErr(domainErr, "wrapped"); !errors.Is(got, domainErr) {
		t.Fatalf("expected domain error to pass through, got %v", got)
	}
}
