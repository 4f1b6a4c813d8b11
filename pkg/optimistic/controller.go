// Package optimistic implements compare-and-set updates for versioned aggregates.
package optimistic

import (
	"context"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

// InitialVersion is the version assigned on creation.
const InitialVersion = 1

// Versioned is any aggregate carrying a monotonically increasing version.
type Versioned interface {
	GetVersion() int
}

// Store performs the conditional write. Implementations must apply the
// update only when the stored version equals expectedVersion, persist
// expectedVersion+1, and return apperrors.ErrVersionConflict when no row
// matched.
type Store[T Versioned] interface {
	UpdateIfVersion(ctx context.Context, entity T, expectedVersion int) (T, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc[T Versioned] func(ctx context.Context, entity T, expectedVersion int) (T, error)

func (f StoreFunc[T]) UpdateIfVersion(ctx context.Context, entity T, expectedVersion int) (T, error) {
	return f(ctx, entity, expectedVersion)
}

type Controller[T Versioned] struct {
	store Store[T]
}

func NewController[T Versioned](store Store[T]) *Controller[T] {
	return &Controller[T]{store: store}
}

// Apply mutates current and writes it conditioned on expectedVersion.
// A current whose version already differs fails fast without touching the
// store. The store remains the arbiter for writers racing past that check.
func (c *Controller[T]) Apply(ctx context.Context, current T, expectedVersion int, mutate func(T) error) (T, error) {
	var zero T
	if current.GetVersion() != expectedVersion {
		return zero, apperrors.ErrVersionConflict
	}
	if mutate != nil {
		if err := mutate(current); err != nil {
			return zero, err
		}
	}

	updated, err := c.store.UpdateIfVersion(ctx, current, expectedVersion)
	if err != nil {
		return zero, err
	}
	if updated.GetVersion() != expectedVersion+1 {
		return zero, apperrors.NewInternal(nil).WithMessage(
			"store returned version %d, want %d", updated.GetVersion(), expectedVersion+1)
	}
	return updated, nil
}
