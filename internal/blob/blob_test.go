package blob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/pkg/platform/circuit"
	"intake/pkg/platform/sentinel"
)

func TestContentRef(t *testing.T) {
	a := ContentRef([]byte("hello"))
	assert.Equal(t, a, ContentRef([]byte("hello")))
	assert.NotEqual(t, a, ContentRef([]byte("hello!")))
	assert.Len(t, a, len(refPrefix)+64)
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	ref, err := store.Store(ctx, []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)

	obj, err := store.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), obj.Data)

	again, err := store.Store(ctx, []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, ref, again)
	assert.Equal(t, 1, store.Len())

	_, err = store.Fetch(ctx, "b2b256-missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

type failingStorage struct {
	err   error
	calls int
}

func (f *failingStorage) Store(context.Context, []byte, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "ref", nil
}

func (f *failingStorage) Fetch(_ context.Context, ref string) (*Object, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Object{Ref: ref}, nil
}

func TestGuarded(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("opens after consecutive failures and fails fast", func(t *testing.T) {
		backend := &failingStorage{err: errors.Join(sentinel.ErrUnavailable, errors.New("dial tcp: refused"))}
		var transitions []bool
		g := NewGuarded(backend,
			circuit.New("blob", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Minute), circuit.WithClock(clock)),
			WithStateObserver(func(open bool) { transitions = append(transitions, open) }),
		)

		for range 2 {
			_, err := g.Store(ctx, []byte("x"), "image/png")
			require.ErrorIs(t, err, sentinel.ErrUnavailable)
		}
		assert.Equal(t, []bool{true}, transitions)

		_, err := g.Store(ctx, []byte("x"), "image/png")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.Equal(t, 2, backend.calls, "open breaker must not reach the backend")
	})

	t.Run("trial call after cooldown closes the breaker", func(t *testing.T) {
		backend := &failingStorage{err: sentinel.ErrUnavailable}
		current := now
		var transitions []bool
		g := NewGuarded(backend,
			circuit.New("blob", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Minute),
				circuit.WithClock(func() time.Time { return current })),
			WithStateObserver(func(open bool) { transitions = append(transitions, open) }),
		)

		_, err := g.Fetch(ctx, "ref")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)

		backend.err = nil
		current = current.Add(2 * time.Minute)
		obj, err := g.Fetch(ctx, "ref")
		require.NoError(t, err)
		assert.Equal(t, "ref", obj.Ref)
		assert.Equal(t, []bool{true, false}, transitions)
	})

	t.Run("caller cancellation does not count as a failure", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		backend := &failingStorage{err: fmt.Errorf("store blob: %w: %w", sentinel.ErrUnavailable, cancelled.Err())}
		breaker := circuit.New("blob", circuit.WithFailureThreshold(2), circuit.WithClock(clock))
		g := NewGuarded(backend, breaker)

		for range 5 {
			_, err := g.Store(cancelled, []byte("x"), "application/pdf")
			require.ErrorIs(t, err, context.Canceled)
		}
		assert.False(t, breaker.IsOpen())

		backend.err = nil
		ref, err := g.Store(ctx, []byte("x"), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, "ref", ref)
	})

	t.Run("caller deadline does not count but backend timeouts do", func(t *testing.T) {
		expired, cancel := context.WithDeadline(ctx, time.Unix(0, 0))
		defer cancel()
		backend := &failingStorage{err: fmt.Errorf("fetch blob: %w: %w", sentinel.ErrUnavailable, context.DeadlineExceeded)}
		breaker := circuit.New("blob", circuit.WithFailureThreshold(2), circuit.WithClock(clock))
		g := NewGuarded(backend, breaker)

		for range 3 {
			_, err := g.Fetch(expired, "ref")
			require.Error(t, err)
		}
		assert.False(t, breaker.IsOpen())

		for range 2 {
			_, err := g.Fetch(ctx, "ref")
			require.ErrorIs(t, err, context.DeadlineExceeded)
		}
		assert.True(t, breaker.IsOpen(), "a timeout under a live caller context is a backend failure")
	})

	t.Run("not found does not count as a failure", func(t *testing.T) {
		backend := &failingStorage{err: sentinel.ErrNotFound}
		breaker := circuit.New("blob", circuit.WithFailureThreshold(1), circuit.WithClock(clock))
		g := NewGuarded(backend, breaker)

		_, err := g.Fetch(ctx, "ref")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.False(t, breaker.IsOpen())
	})
}
