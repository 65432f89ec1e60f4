package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"intake/pkg/platform/circuit"
	"intake/pkg/platform/sentinel"
)

// Guarded wraps a Storage with a circuit breaker. Consecutive backend failures
// open the breaker; while open, calls fail fast with sentinel.ErrUnavailable
// until a trial call succeeds.
type Guarded struct {
	next    Storage
	breaker *circuit.Breaker
	logger  *slog.Logger
	onState func(open bool)
}

type GuardOption func(*Guarded)

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		g.logger = logger
	}
}

// WithStateObserver is called with true when the breaker opens and false when it closes.
func WithStateObserver(fn func(open bool)) GuardOption {
	return func(g *Guarded) {
		g.onState = fn
	}
}

func NewGuarded(next Storage, breaker *circuit.Breaker, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:    next,
		breaker: breaker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if !g.breaker.Allow() {
		return "", fmt.Errorf("blob storage circuit open: %w", sentinel.ErrUnavailable)
	}
	ref, err := g.next.Store(ctx, data, contentType)
	g.record(ctx, err)
	return ref, err
}

func (g *Guarded) Fetch(ctx context.Context, ref string) (*Object, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("blob storage circuit open: %w", sentinel.ErrUnavailable)
	}
	obj, err := g.next.Fetch(ctx, ref)
	g.record(ctx, err)
	return obj, err
}

// record counts only backend failures; a missing blob is a healthy answer.
// Calls the caller abandoned say nothing about the backend and are not counted.
func (g *Guarded) record(ctx context.Context, err error) {
	if err != nil && callerGaveUp(ctx, err) {
		return
	}
	var change circuit.StateChange
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		_, change = g.breaker.RecordFailure()
	} else {
		_, change = g.breaker.RecordSuccess()
	}
	switch {
	case change.Opened:
		g.logger.WarnContext(ctx, "blob storage circuit opened",
			"breaker", g.breaker.Name(),
			"error", err,
		)
		if g.onState != nil {
			g.onState(true)
		}
	case change.Closed:
		g.logger.InfoContext(ctx, "blob storage circuit closed",
			"breaker", g.breaker.Name(),
		)
		if g.onState != nil {
			g.onState(false)
		}
	}
}

func callerGaveUp(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
