// Package event carries slot-freed notifications from the scheduler to the
// waitlist matcher. Delivery is at-most-once and best effort: nothing is
// persisted and a full queue drops the event.
package event

import (
	"context"

	"github.com/jwalitptl/scheduling-api/internal/model"
)

// SlotFreedHandler consumes a freed slot.
type SlotFreedHandler interface {
	HandleSlotFreed(ctx context.Context, slot model.FreedSlot) error
}

type SlotFreedHandlerFunc func(ctx context.Context, slot model.FreedSlot) error

func (f SlotFreedHandlerFunc) HandleSlotFreed(ctx context.Context, slot model.FreedSlot) error {
	return f(ctx, slot)
}
