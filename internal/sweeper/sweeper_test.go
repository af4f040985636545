package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/slots"
	"github.com/clinicbook/booking-platform/internal/storage"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func seedSlot(t *testing.T, store *storage.Memory, capacity int) slots.Slot {
	t.Helper()
	doc := doctors.Doctor{ID: uuid.New(), Name: "Dr. Ruiz", Verified: true, Active: true}
	start := testNow.Add(48 * time.Hour)
	slot := slots.Slot{
		ID: uuid.New(), DoctorID: doc.ID, ClinicID: uuid.New(),
		StartAt: start, EndAt: start.Add(time.Hour),
		Capacity: capacity, IsAvailable: true,
	}
	store.Seed([]doctors.Doctor{doc}, []slots.Slot{slot})
	return slot
}

func seedAppointment(t *testing.T, store *storage.Memory, slot slots.Slot, status appointments.Status, createdAt time.Time) uuid.UUID {
	t.Helper()
	appt := &appointments.Appointment{
		ID:        uuid.New(),
		SlotID:    slot.ID,
		DoctorID:  slot.DoctorID,
		PatientID: uuid.New(),
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	var rec slots.Reconciler
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		if err := tx.InsertAppointment(context.Background(), appt); err != nil {
			return err
		}
		if status.HoldsCapacity() {
			if _, err := rec.Apply(context.Background(), tx, slot.ID, 1); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return appt.ID
}

func TestSweepOnceExpiresStalePending(t *testing.T) {
	store := storage.NewMemory()
	slot := seedSlot(t, store, 2)

	stale := seedAppointment(t, store, slot, appointments.StatusPending, testNow.Add(-25*time.Hour))
	fresh := seedAppointment(t, store, slot, appointments.StatusPending, testNow.Add(-time.Hour))

	sw := New(store, nil, nil, &Options{PendingTTL: 24 * time.Hour}).
		WithClock(func() time.Time { return testNow })

	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := store.GetAppointment(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusExpired, expired.Status)

	kept, err := store.GetAppointment(context.Background(), fresh)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusPending, kept.Status)

	// The stale appointment's seat is back; the fresh one still holds its own.
	got, err := store.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BookedCount)
	assert.True(t, got.IsAvailable)

	entries, err := store.FetchPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, events.TypeExpired, entries[0].Type)
}

func TestSweepOnceSkipsConfirmedConcurrently(t *testing.T) {
	store := storage.NewMemory()
	slot := seedSlot(t, store, 1)

	// Old enough to be listed, but no longer pending by the time the
	// sweeper gets the row lock.
	id := seedAppointment(t, store, slot, appointments.StatusPending, testNow.Add(-48*time.Hour))
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		return tx.SetAppointmentStatus(context.Background(), id, appointments.StatusConfirmed, testNow)
	})
	require.NoError(t, err)

	sw := New(store, nil, nil, nil).WithClock(func() time.Time { return testNow })

	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BookedCount, "confirmed appointments keep their seat")
}

func TestSweepOnceIsIdempotent(t *testing.T) {
	store := storage.NewMemory()
	slot := seedSlot(t, store, 1)
	seedAppointment(t, store, slot, appointments.StatusPending, testNow.Add(-48*time.Hour))

	sw := New(store, nil, nil, nil).WithClock(func() time.Time { return testNow })

	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a second pass finds nothing to expire")

	got, err := store.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Zero(t, got.BookedCount, "the seat is released exactly once")
}

func TestSweepOnceRespectsBatchSize(t *testing.T) {
	store := storage.NewMemory()
	slot := seedSlot(t, store, 5)
	for i := 0; i < 5; i++ {
		seedAppointment(t, store, slot, appointments.StatusPending, testNow.Add(-48*time.Hour))
	}

	sw := New(store, nil, nil, &Options{BatchSize: 2}).WithClock(func() time.Time { return testNow })

	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepOnceExpiresPendingOnArchivedSlot(t *testing.T) {
	store := storage.NewMemory()
	slot := seedSlot(t, store, 1)
	ctx := context.Background()

	stale := seedAppointment(t, store, slot, appointments.StatusPending, testNow.Add(-25*time.Hour))

	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.ArchiveSlot(ctx, slot.ID)
	}))

	sw := New(store, nil, nil, &Options{PendingTTL: 24 * time.Hour}).
		WithClock(func() time.Time { return testNow })

	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := store.GetAppointment(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusExpired, expired.Status)

	// The seat is freed on the archived slot's counter.
	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		got, err := tx.SlotForUpdate(ctx, slot.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, got.BookedCount)
		return nil
	})
	require.NoError(t, err)
}

func TestSweepOnceEmptyStore(t *testing.T) {
	sw := New(storage.NewMemory(), nil, nil, nil)
	n, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
