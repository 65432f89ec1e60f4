package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"intake/internal/documents/models"
	id "intake/pkg/domain"
)

const (
	DefaultReviewQueueLimit = 50
	MaxReviewQueueLimit     = 200
)

// SummaryService derives the verification summary of an application on every read.
type SummaryService struct {
	store DocumentStore
	*serviceConfig
}

func NewSummaryService(store DocumentStore, opts ...Option) *SummaryService {
	return &SummaryService{store: store, serviceConfig: newConfig(opts)}
}

func (s *SummaryService) Summarize(ctx context.Context, appID id.ApplicationID) (models.VerificationSummary, error) {
	ctx, span := s.tracer.Start(ctx, "documents.summarize")
	defer span.End()

	if err := authorizeApplicationID(ctx, s.store, appID); err != nil {
		return models.VerificationSummary{}, s.fail(span, err)
	}
	records, err := s.store.ListForApplication(ctx, appID)
	if err != nil {
		return models.VerificationSummary{}, s.fail(span, wrapStoreErr(err, "application not found"))
	}
	return models.Summarize(records), nil
}

// StatusService answers read-only queries. It never mutates state, so repeated
// calls without intervening transitions return equal results.
type StatusService struct {
	store DocumentStore
	*serviceConfig
}

func NewStatusService(store DocumentStore, opts ...Option) *StatusService {
	return &StatusService{store: store, serviceConfig: newConfig(opts)}
}

// GetStatus loads the application and its records concurrently and returns
// them with a freshly derived summary. Records are in canonical type order.
func (s *StatusService) GetStatus(ctx context.Context, appID id.ApplicationID) (*models.ApplicationStatus, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "documents.GetStatus")
	defer span.End()
	defer s.observe("get_status", start)

	var (
		app     *models.Application
		records []*models.DocumentRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		app, err = s.store.FindApplication(gctx, appID)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.store.ListForApplication(gctx, appID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, wrapStoreErr(err, "application not found"))
	}
	if err := authorizeApplication(ctx, app); err != nil {
		return nil, s.fail(span, err)
	}
	models.SortRecords(records)

	return &models.ApplicationStatus{
		Application: app,
		Documents:   records,
		Summary:     models.Summarize(records),
	}, nil
}

// LookupByNumber resolves a human-readable application number to its status.
func (s *StatusService) LookupByNumber(ctx context.Context, number string) (*models.ApplicationStatus, error) {
	ctx, span := s.tracer.Start(ctx, "documents.LookupByNumber")
	defer span.End()

	app, err := s.store.FindApplicationByNumber(ctx, number)
	if err != nil {
		return nil, s.fail(span, wrapStoreErr(err, "application not found"))
	}
	return s.GetStatus(ctx, app.ID)
}

// ReviewQueue lists pending documents, least recently updated first.
// limit <= 0 selects the default; larger values are capped.
func (s *StatusService) ReviewQueue(ctx context.Context, limit int) ([]*models.DocumentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "documents.ReviewQueue")
	defer span.End()

	switch {
	case limit <= 0:
		limit = DefaultReviewQueueLimit
	case limit > MaxReviewQueueLimit:
		limit = MaxReviewQueueLimit
	}
	records, err := s.store.ListByStatus(ctx, models.StatusPending, limit)
	if err != nil {
		return nil, s.fail(span, wrapStoreErr(err, "failed to list review queue"))
	}
	return records, nil
}
