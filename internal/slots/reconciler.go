package slots

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrCapacityExceeded indicates the fill counter would pass the slot's
// capacity. The reservation engine checks remaining capacity under the same
// lock before asking for an increment, so this surfacing is fatal.
var ErrCapacityExceeded = errors.New("slot capacity invariant violated")

// ErrFillUnderflow indicates a release against an empty slot, which means a
// seat was freed twice. Fatal for the same reason as ErrCapacityExceeded.
var ErrFillUnderflow = errors.New("slot fill counter underflow")

// CounterStore is the slice of a storage transaction the reconciler needs.
// The slot row must already be locked by the enclosing transaction.
type CounterStore interface {
	SlotForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error)
	CountHolding(ctx context.Context, slotID uuid.UUID) (int, error)
	SetSlotFill(ctx context.Context, id uuid.UUID, bookedCount int, isAvailable bool) error
}

// Reconciler keeps a slot's fill counter and derived availability flag
// consistent with the set of capacity-holding appointments. It runs inside
// the transaction of every appointment-creating or -terminating operation,
// never as a background job.
type Reconciler struct{}

// Apply shifts the fill counter by delta and rederives availability.
func (Reconciler) Apply(ctx context.Context, st CounterStore, slotID uuid.UUID, delta int) (*Slot, error) {
	slot, err := st.SlotForUpdate(ctx, slotID)
	if err != nil {
		return nil, err
	}

	booked := slot.BookedCount + delta
	if booked < 0 {
		return nil, fmt.Errorf("%w: slot %s booked %d", ErrFillUnderflow, slotID, booked)
	}
	if booked > slot.Capacity {
		return nil, fmt.Errorf("%w: slot %s booked %d over capacity %d",
			ErrCapacityExceeded, slotID, booked, slot.Capacity)
	}

	available := booked < slot.Capacity
	if err := st.SetSlotFill(ctx, slotID, booked, available); err != nil {
		return nil, err
	}

	slot.BookedCount = booked
	slot.IsAvailable = available
	return slot, nil
}

// Recount rebuilds the counter from the appointments table. Repair path for
// operators; the transactional Apply keeps the counter correct in normal
// operation.
func (Reconciler) Recount(ctx context.Context, st CounterStore, slotID uuid.UUID) (*Slot, error) {
	slot, err := st.SlotForUpdate(ctx, slotID)
	if err != nil {
		return nil, err
	}

	booked, err := st.CountHolding(ctx, slotID)
	if err != nil {
		return nil, err
	}

	available := booked < slot.Capacity
	if err := st.SetSlotFill(ctx, slotID, booked, available); err != nil {
		return nil, err
	}

	slot.BookedCount = booked
	slot.IsAvailable = available
	return slot, nil
}
