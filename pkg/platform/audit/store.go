package audit

import (
	"context"

	id "intake/pkg/domain"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader lists persisted audit events.
type Reader interface {
	ListByApplication(ctx context.Context, applicationID id.ApplicationID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// ReadStore is a Store that can also be queried.
type ReadStore interface {
	Store
	Reader
}
