package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"intake/internal/documents/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

type DocumentRecordSuite struct {
	suite.Suite
	appID    id.ApplicationID
	now      time.Time
	reviewer models.Reviewer
	file     models.StoredFile
}

func TestDocumentRecordSuite(t *testing.T) {
	suite.Run(t, new(DocumentRecordSuite))
}

func (s *DocumentRecordSuite) SetupTest() {
	s.appID = id.NewApplicationID()
	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.reviewer = models.Reviewer{ID: "staff-1", DisplayName: "R. Okafor"}
	s.file = models.StoredFile{
		Ref:              "blob:abc",
		OriginalFileName: "passport.pdf",
		ContentType:      "application/pdf",
		SizeBytes:        2048,
	}
}

func (s *DocumentRecordSuite) newRecord(status models.Status) *models.DocumentRecord {
	rec := models.NewDocumentRecord(s.appID, models.DocumentTypeIdentityProof, s.now)
	switch status {
	case models.StatusPending:
		rec.ApplySubmit(s.file, s.now)
	case models.StatusVerified:
		rec.ApplySubmit(s.file, s.now)
		rec.ApplyVerify(s.reviewer, "", s.now)
	case models.StatusRejected:
		rec.ApplySubmit(s.file, s.now)
		rec.ApplyReject(s.reviewer, "blurry scan", s.now)
	}
	return rec
}

func (s *DocumentRecordSuite) TestInitialState() {
	rec := models.NewDocumentRecord(s.appID, models.DocumentTypePhoto, s.now)
	s.Equal(models.StatusNotUploaded, rec.Status)
	s.Empty(rec.FileRef)
	s.Nil(rec.UploadedAt)
	s.Nil(rec.VerifiedAt)
	s.Nil(rec.VerifiedBy)
	s.NoError(rec.CheckInvariants())
}

func (s *DocumentRecordSuite) TestSubmit() {
	s.Run("allowed from not_uploaded", func() {
		rec := s.newRecord(models.StatusNotUploaded)
		s.Require().NoError(rec.CanSubmit())
		rec.ApplySubmit(s.file, s.now.Add(time.Minute))

		s.Equal(models.StatusPending, rec.Status)
		s.Equal(s.file.Ref, rec.FileRef)
		s.Equal("passport.pdf", rec.OriginalFileName)
		s.Require().NotNil(rec.UploadedAt)
		s.Equal(s.now.Add(time.Minute), *rec.UploadedAt)
		s.NoError(rec.CheckInvariants())
	})

	s.Run("allowed from rejected and clears verification fields", func() {
		rec := s.newRecord(models.StatusRejected)
		s.Require().NoError(rec.CanSubmit())
		rec.ApplySubmit(models.StoredFile{Ref: "blob:new", OriginalFileName: "passport-v2.pdf"}, s.now)

		s.Equal(models.StatusPending, rec.Status)
		s.Equal(models.FileRef("blob:new"), rec.FileRef)
		s.Nil(rec.VerifiedAt)
		s.Nil(rec.VerifiedBy)
		s.Empty(rec.VerificationNotes)
		s.NoError(rec.CheckInvariants())
	})

	s.Run("refused while pending", func() {
		rec := s.newRecord(models.StatusPending)
		err := rec.CanSubmit()
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("refused once verified", func() {
		rec := s.newRecord(models.StatusVerified)
		err := rec.CanSubmit()
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *DocumentRecordSuite) TestVerify() {
	s.Run("stamps reviewer and notes", func() {
		rec := s.newRecord(models.StatusPending)
		s.Require().NoError(rec.CanVerify())
		rec.ApplyVerify(s.reviewer, "  looks good ", s.now)

		s.Equal(models.StatusVerified, rec.Status)
		s.Require().NotNil(rec.VerifiedBy)
		s.Equal("staff-1", rec.VerifiedBy.ID)
		s.Equal("looks good", rec.VerificationNotes)
		s.NoError(rec.CheckInvariants())
	})

	for _, st := range []models.Status{models.StatusNotUploaded, models.StatusVerified, models.StatusRejected} {
		s.Run("refused from "+string(st), func() {
			err := s.newRecord(st).CanVerify()
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		})
	}
}

func (s *DocumentRecordSuite) TestReject() {
	s.Run("requires notes", func() {
		for _, notes := range []string{"", "   ", "\t\n"} {
			rec := s.newRecord(models.StatusPending)
			err := rec.CanReject(notes)
			s.True(dErrors.HasCode(err, dErrors.CodeMissingReason))
			s.Equal(models.StatusPending, rec.Status)
		}
	})

	s.Run("missing reason is reported before state", func() {
		err := s.newRecord(models.StatusVerified).CanReject("")
		s.True(dErrors.HasCode(err, dErrors.CodeMissingReason))
	})

	s.Run("refused unless pending", func() {
		err := s.newRecord(models.StatusNotUploaded).CanReject("bad scan")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("second rejection overwrites notes", func() {
		rec := s.newRecord(models.StatusRejected)
		rec.ApplySubmit(s.file, s.now)
		s.Require().NoError(rec.CanReject("signature missing"))
		rec.ApplyReject(s.reviewer, "signature missing", s.now)

		s.Equal(models.StatusRejected, rec.Status)
		s.Equal("signature missing", rec.VerificationNotes)
	})
}

func (s *DocumentRecordSuite) TestReupload() {
	s.NoError(s.newRecord(models.StatusRejected).CanReupload())
	for _, st := range []models.Status{models.StatusNotUploaded, models.StatusPending, models.StatusVerified} {
		err := s.newRecord(st).CanReupload()
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligibleForReupload), "status %s", st)
	}
}

func (s *DocumentRecordSuite) TestCloneIsDeep() {
	rec := s.newRecord(models.StatusRejected)
	c := rec.Clone()
	c.VerifiedBy.DisplayName = "changed"
	*c.UploadedAt = s.now.Add(time.Hour)

	s.Equal("R. Okafor", rec.VerifiedBy.DisplayName)
	s.Equal(s.now, *rec.UploadedAt)
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to models.Status
		ok       bool
	}{
		{models.StatusNotUploaded, models.StatusPending, true},
		{models.StatusNotUploaded, models.StatusVerified, false},
		{models.StatusPending, models.StatusVerified, true},
		{models.StatusPending, models.StatusRejected, true},
		{models.StatusPending, models.StatusNotUploaded, false},
		{models.StatusRejected, models.StatusPending, true},
		{models.StatusRejected, models.StatusVerified, false},
		{models.StatusVerified, models.StatusPending, false},
		{models.StatusVerified, models.StatusRejected, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseDocumentType(t *testing.T) {
	dt, err := models.ParseDocumentType(" Identity_Proof ")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentTypeIdentityProof, dt)

	_, err = models.ParseDocumentType("birth_certificate")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestParseStatus(t *testing.T) {
	st, err := models.ParseStatus("PENDING")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, st)

	_, err = models.ParseStatus("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestSortDocumentTypes(t *testing.T) {
	types := []models.DocumentType{
		models.DocumentTypeSignature,
		models.DocumentTypeIdentityProof,
		models.DocumentTypePhoto,
	}
	models.SortDocumentTypes(types)
	assert.Equal(t, []models.DocumentType{
		models.DocumentTypeIdentityProof,
		models.DocumentTypePhoto,
		models.DocumentTypeSignature,
	}, types)
	assert.Len(t, models.AllDocumentTypes(), 8)
}
