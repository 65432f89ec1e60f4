package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"intake/internal/documents/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
)

// Error Contract:
// - Return ErrNotFound when the application or the record type on it does not exist
// - Return ErrConflict when an application id or number is already taken
// - Return validate's error unchanged from Execute so callers keep their domain codes

// InMemory stores applications and their document records in memory for tests/dev.
type InMemory struct {
	mu       sync.RWMutex
	apps     map[id.ApplicationID]*models.Application
	byNumber map[string]id.ApplicationID
	records  map[id.ApplicationID]map[models.DocumentType]*models.DocumentRecord
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		apps:     make(map[id.ApplicationID]*models.Application),
		byNumber: make(map[string]id.ApplicationID),
		records:  make(map[id.ApplicationID]map[models.DocumentType]*models.DocumentRecord),
	}
}

// CreateApplication stores the application and its initial records together.
func (s *InMemory) CreateApplication(_ context.Context, app *models.Application, records []*models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[app.ID]; ok {
		return fmt.Errorf("application %s already exists: %w", app.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byNumber[app.Number]; ok {
		return fmt.Errorf("application number %s already exists: %w", app.Number, sentinel.ErrConflict)
	}

	byType := make(map[models.DocumentType]*models.DocumentRecord, len(records))
	for _, rec := range records {
		if rec.ApplicationID != app.ID {
			return fmt.Errorf("record %s belongs to another application: %w", rec.Type, sentinel.ErrInvalidState)
		}
		byType[rec.Type] = rec.Clone()
	}

	stored := *app
	stored.RequiredDocuments = slices.Clone(app.RequiredDocuments)
	s.apps[app.ID] = &stored
	s.byNumber[app.Number] = app.ID
	s.records[app.ID] = byType
	return nil
}

func (s *InMemory) FindApplication(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
	}
	return cloneApplication(app), nil
}

func (s *InMemory) FindApplicationByNumber(_ context.Context, number string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appID, ok := s.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("application number %s: %w", number, sentinel.ErrNotFound)
	}
	return cloneApplication(s.apps[appID]), nil
}

// Get returns a copy of one record.
func (s *InMemory) Get(_ context.Context, appID id.ApplicationID, docType models.DocumentType) (*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(appID, docType)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Upsert replaces the record for its (application, type) key.
// The application must exist and require the type.
func (s *InMemory) Upsert(_ context.Context, record *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(record.ApplicationID, record.Type); err != nil {
		return err
	}
	s.records[record.ApplicationID][record.Type] = record.Clone()
	return nil
}

// ListForApplication returns every record of the application in canonical type order.
func (s *InMemory) ListForApplication(_ context.Context, appID id.ApplicationID) ([]*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byType, ok := s.records[appID]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
	}
	out := make([]*models.DocumentRecord, 0, len(byType))
	for _, rec := range byType {
		out = append(out, rec.Clone())
	}
	models.SortRecords(out)
	return out, nil
}

// Execute atomically validates and mutates one record under the store lock.
// validate sees the current state; its error aborts without a write. mutate
// runs on a copy that replaces the stored record only after it returns.
func (s *InMemory) Execute(_ context.Context, appID id.ApplicationID, docType models.DocumentType,
	validate func(*models.DocumentRecord) error, mutate func(*models.DocumentRecord),
) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.lookup(appID, docType)
	if err != nil {
		return nil, err
	}
	if err := validate(current.Clone()); err != nil {
		return nil, err
	}
	next := current.Clone()
	mutate(next)
	s.records[appID][docType] = next
	return next.Clone(), nil
}

// ListByStatus returns up to limit records in the given status, least recently updated first.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status, limit int) ([]*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DocumentRecord
	for _, byType := range s.records {
		for _, rec := range byType {
			if rec.Status == status {
				out = append(out, rec.Clone())
			}
		}
	}
	slices.SortFunc(out, func(a, b *models.DocumentRecord) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ApplicationID.String(), b.ApplicationID.String()); c != 0 {
			return c
		}
		return a.Type.Ordinal() - b.Type.Ordinal()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) lookup(appID id.ApplicationID, docType models.DocumentType) (*models.DocumentRecord, error) {
	byType, ok := s.records[appID]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
	}
	rec, ok := byType[docType]
	if !ok {
		return nil, fmt.Errorf("document %s on application %s: %w", docType, appID, sentinel.ErrNotFound)
	}
	return rec, nil
}

func cloneApplication(app *models.Application) *models.Application {
	c := *app
	c.RequiredDocuments = slices.Clone(app.RequiredDocuments)
	return &c
}
