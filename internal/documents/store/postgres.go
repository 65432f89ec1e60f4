package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"intake/internal/documents/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
	txcontext "intake/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists applications and document records in PostgreSQL.
// Transition rules live in the models; this store only guarantees that
// Execute's validate and mutate run under a row lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// executor prefers a transaction carried in ctx so callers can compose writes.
func (s *PostgresStore) executor(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

// withTx runs fn inside the ambient transaction if present, otherwise in a new one.
func (s *PostgresStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) CreateApplication(ctx context.Context, app *models.Application, records []*models.DocumentRecord) error {
	return s.withTx(ctx, "create application", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO applications (id, application_number, applicant_id, applicant_name, applicant_email, program, required_documents, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::text[], $8)
		`,
			uuid.UUID(app.ID),
			app.Number,
			uuid.UUID(app.Applicant.ID),
			app.Applicant.FullName,
			app.Applicant.Email,
			app.Applicant.Program,
			pq.Array(typeStrings(app.RequiredDocuments)),
			app.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("application %s: %w", app.Number, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert application: %w", err)
		}

		if len(records) == 0 {
			return nil
		}
		types := make([]string, 0, len(records))
		statuses := make([]string, 0, len(records))
		for _, rec := range records {
			types = append(types, string(rec.Type))
			statuses = append(statuses, string(rec.Status))
		}
		// Batch insert using unnest for one round trip
		_, err = tx.ExecContext(ctx, `
			INSERT INTO document_records (application_id, document_type, status, updated_at)
			SELECT $1, t.document_type, t.status, $4
			FROM unnest($2::text[], $3::text[]) AS t(document_type, status)
		`, uuid.UUID(app.ID), pq.Array(types), pq.Array(statuses), app.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert document records: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FindApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := scanApplication(s.executor(ctx).QueryRowContext(ctx, applicationSelect+` WHERE id = $1`, uuid.UUID(appID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) FindApplicationByNumber(ctx context.Context, number string) (*models.Application, error) {
	app, err := scanApplication(s.executor(ctx).QueryRowContext(ctx, applicationSelect+` WHERE application_number = $1`, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application number %s: %w", number, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find application by number: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) Get(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) (*models.DocumentRecord, error) {
	rec, err := scanRecord(s.executor(ctx).QueryRowContext(ctx,
		recordSelect+` WHERE application_id = $1 AND document_type = $2`,
		uuid.UUID(appID), string(docType)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s on application %s: %w", docType, appID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get document record: %w", err)
	}
	return rec, nil
}

// Upsert overwrites an existing record. Records are only created with their
// application, so an unknown key is reported as not found.
func (s *PostgresStore) Upsert(ctx context.Context, record *models.DocumentRecord) error {
	res, err := s.executor(ctx).ExecContext(ctx, recordUpdate, recordUpdateArgs(record)...)
	if err != nil {
		return fmt.Errorf("upsert document record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert document record rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document %s on application %s: %w", record.Type, record.ApplicationID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListForApplication(ctx context.Context, appID id.ApplicationID) ([]*models.DocumentRecord, error) {
	exec := s.executor(ctx)
	rows, err := exec.QueryContext(ctx, recordSelect+` WHERE application_id = $1`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list document records: %w", err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		var exists bool
		if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, uuid.UUID(appID)).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check application exists: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
		}
	}
	models.SortRecords(records)
	return records, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, runs validate and mutate,
// and writes the result in the same transaction.
func (s *PostgresStore) Execute(ctx context.Context, appID id.ApplicationID, docType models.DocumentType,
	validate func(*models.DocumentRecord) error, mutate func(*models.DocumentRecord),
) (*models.DocumentRecord, error) {
	var result *models.DocumentRecord
	err := s.withTx(ctx, "execute document record", func(tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx,
			recordSelect+` WHERE application_id = $1 AND document_type = $2 FOR UPDATE`,
			uuid.UUID(appID), string(docType)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("document %s on application %s: %w", docType, appID, sentinel.ErrNotFound)
			}
			return fmt.Errorf("lock document record: %w", err)
		}
		if err := validate(rec.Clone()); err != nil {
			return err
		}
		mutate(rec)
		if _, err := tx.ExecContext(ctx, recordUpdate, recordUpdateArgs(rec)...); err != nil {
			return fmt.Errorf("update document record: %w", err)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.DocumentRecord, error) {
	query := recordSelect + `
		WHERE status = $1
		ORDER BY updated_at ASC, application_id ASC, array_position($2::text[], document_type) ASC`
	args := []any{string(status), pq.Array(typeStrings(models.AllDocumentTypes()))}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list document records by status: %w", err)
	}
	return collectRecords(rows)
}

const applicationSelect = `
	SELECT id, application_number, applicant_id, applicant_name, applicant_email, program, required_documents, created_at
	FROM applications`

const recordSelect = `
	SELECT application_id, document_type, status, file_ref, original_file_name, content_type, size_bytes,
		uploaded_at, verified_at, verified_by_id, verified_by_name, verification_notes, updated_at
	FROM document_records`

const recordUpdate = `
	UPDATE document_records SET
		status = $3,
		file_ref = $4,
		original_file_name = $5,
		content_type = $6,
		size_bytes = $7,
		uploaded_at = $8,
		verified_at = $9,
		verified_by_id = $10,
		verified_by_name = $11,
		verification_notes = $12,
		updated_at = $13
	WHERE application_id = $1 AND document_type = $2`

func recordUpdateArgs(rec *models.DocumentRecord) []any {
	var reviewerID, reviewerName sql.NullString
	if rec.VerifiedBy != nil {
		reviewerID = sql.NullString{String: rec.VerifiedBy.ID, Valid: true}
		reviewerName = sql.NullString{String: rec.VerifiedBy.DisplayName, Valid: true}
	}
	return []any{
		uuid.UUID(rec.ApplicationID),
		string(rec.Type),
		string(rec.Status),
		string(rec.FileRef),
		rec.OriginalFileName,
		rec.ContentType,
		rec.SizeBytes,
		nullTime(rec.UploadedAt),
		nullTime(rec.VerifiedAt),
		reviewerID,
		reviewerName,
		rec.VerificationNotes,
		rec.UpdatedAt,
	}
}

type row interface {
	Scan(dest ...any) error
}

func scanApplication(r row) (*models.Application, error) {
	var (
		appID, applicantID uuid.UUID
		required           []string
		app                models.Application
	)
	if err := r.Scan(&appID, &app.Number, &applicantID, &app.Applicant.FullName, &app.Applicant.Email,
		&app.Applicant.Program, pq.Array(&required), &app.CreatedAt); err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.Applicant.ID = id.ApplicantID(applicantID)
	app.RequiredDocuments = make([]models.DocumentType, 0, len(required))
	for _, t := range required {
		app.RequiredDocuments = append(app.RequiredDocuments, models.DocumentType(t))
	}
	return &app, nil
}

func scanRecord(r row) (*models.DocumentRecord, error) {
	var (
		appID                    uuid.UUID
		docType, status, fileRef string
		uploadedAt, verifiedAt   sql.NullTime
		reviewerID, reviewerName sql.NullString
		rec                      models.DocumentRecord
	)
	if err := r.Scan(&appID, &docType, &status, &fileRef, &rec.OriginalFileName, &rec.ContentType, &rec.SizeBytes,
		&uploadedAt, &verifiedAt, &reviewerID, &reviewerName, &rec.VerificationNotes, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.ApplicationID = id.ApplicationID(appID)
	rec.Type = models.DocumentType(docType)
	rec.Status = models.Status(status)
	rec.FileRef = models.FileRef(fileRef)
	if uploadedAt.Valid {
		t := uploadedAt.Time
		rec.UploadedAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		rec.VerifiedAt = &t
	}
	if reviewerID.Valid {
		rec.VerifiedBy = &models.Reviewer{ID: reviewerID.String, DisplayName: reviewerName.String}
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*models.DocumentRecord, error) {
	defer rows.Close()
	var records []*models.DocumentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document records: %w", err)
	}
	return records, nil
}

func typeStrings(types []models.DocumentType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
