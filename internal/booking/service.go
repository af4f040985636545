// Package booking is the appointment reservation and consistency engine.
// Every invariant check and derived update for one operation happens inside
// a single storage transaction, with the slot row locked for the duration.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/locker"
	"github.com/clinicbook/booking-platform/internal/observability/metrics"
	"github.com/clinicbook/booking-platform/internal/slots"
	"github.com/clinicbook/booking-platform/internal/storage"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

var bookingTracer = otel.Tracer("clinicbook.internal.booking")

// Options tune the engine's booking policy.
type Options struct {
	// HorizonDays bounds how far ahead a slot may be reserved.
	HorizonDays int
	// RequireConfirmation makes new appointments start as pending instead
	// of scheduled.
	RequireConfirmation bool
	// LockWait bounds how long a reservation waits on a contended slot.
	LockWait time.Duration
	// LockTTL caps how long a crashed holder can keep a slot lock.
	LockTTL time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{HorizonDays: 30, LockWait: 2 * time.Second, LockTTL: 10 * time.Second}
	if o == nil {
		return out
	}
	if o.HorizonDays > 0 {
		out.HorizonDays = o.HorizonDays
	}
	out.RequireConfirmation = o.RequireConfirmation
	if o.LockWait > 0 {
		out.LockWait = o.LockWait
	}
	if o.LockTTL > 0 {
		out.LockTTL = o.LockTTL
	}
	return out
}

// Service validates and atomically commits reservations and lifecycle
// transitions.
type Service struct {
	store      storage.Store
	locks      locker.Locker
	reconciler slots.Reconciler
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	opts       Options
	now        func() time.Time
}

// NewService constructs the reservation engine.
func NewService(store storage.Store, locks locker.Locker, m *metrics.BookingMetrics, logger *logging.Logger, opts *Options) *Service {
	if store == nil {
		panic("booking: store required")
	}
	if locks == nil {
		locks = locker.NewLocal()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:   store,
		locks:   locks,
		metrics: m,
		logger:  logger,
		opts:    opts.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// ReserveRequest is a booking attempt against one slot.
type ReserveRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	SlotID    uuid.UUID `json:"slot_id"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes"`
}

// Validate rejects malformed input before any transaction opens.
func (r *ReserveRequest) Validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient id required", ErrInvalidRequest)
	}
	if r.SlotID == uuid.Nil {
		return fmt.Errorf("%w: slot id required", ErrInvalidRequest)
	}
	return nil
}

// Reserve books one seat on a slot. Exactly as many concurrent attempts
// succeed as the slot has remaining capacity; the rest observe ErrSlotFull.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*appointments.Appointment, error) {
	start := s.now()
	ctx, span := bookingTracer.Start(ctx, "booking.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicbook.slot_id", req.SlotID.String()),
		attribute.String("clinicbook.patient_id", req.PatientID.String()),
	)

	appt, err := s.reserve(ctx, req)
	outcome := "success"
	if err != nil {
		span.RecordError(err)
		outcome = reserveOutcome(err)
	}
	s.metrics.ObserveReservation(outcome, s.now().Sub(start).Seconds())
	return appt, err
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) (*appointments.Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, "slot:"+req.SlotID.String(), s.opts.LockWait, s.opts.LockTTL)
	if err != nil {
		if errors.Is(err, locker.ErrNotAcquired) {
			return nil, fmt.Errorf("%w: reservation lock wait exceeded", slots.ErrBusy)
		}
		return nil, err
	}
	defer release()

	now := s.now()
	var appt *appointments.Appointment

	err = s.store.WithinTx(ctx, func(tx storage.Tx) error {
		slot, err := tx.SlotForUpdate(ctx, req.SlotID)
		if err != nil {
			return err
		}
		if slot.Archived() {
			// Archived slots still transition existing appointments but
			// take no new reservations.
			return slots.ErrNotFound
		}
		if slot.InPast(now) {
			return ErrSlotInPast
		}
		if horizon := now.AddDate(0, 0, s.opts.HorizonDays); slot.StartAt.After(horizon) {
			return ErrOutOfBookingHorizon
		}

		doc, err := tx.GetDoctor(ctx, slot.DoctorID)
		if err != nil {
			return err
		}
		if !doc.Bookable() {
			return doctors.ErrNotVerified
		}

		// The capacity check runs under the slot's row lock, in the same
		// transaction as the insert; a stale pre-check is never trusted.
		holding, err := tx.CountHolding(ctx, slot.ID)
		if err != nil {
			return err
		}
		if holding >= slot.Capacity {
			return ErrSlotFull
		}

		overlap, err := tx.PatientOverlapExists(ctx, req.PatientID, slot.StartAt, slot.EndAt)
		if err != nil {
			return err
		}
		if overlap {
			return ErrPatientDoubleBooked
		}

		status := appointments.StatusScheduled
		if s.opts.RequireConfirmation {
			status = appointments.StatusPending
		}
		appt = &appointments.Appointment{
			ID:        uuid.New(),
			SlotID:    slot.ID,
			DoctorID:  slot.DoctorID,
			PatientID: req.PatientID,
			Status:    status,
			Type:      req.Type,
			Notes:     req.Notes,
			FeeCents:  doc.FeeCents,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if _, err := s.reconciler.Apply(ctx, tx, slot.ID, 1); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, events.NewAppointmentEvent(
			events.TypeCreated, appt.ID, appt.DoctorID, appt.PatientID, appt.SlotID, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation committed",
		"appointment_id", appt.ID,
		"slot_id", appt.SlotID,
		"patient_id", appt.PatientID,
		"status", appt.Status,
	)
	return appt, nil
}

// Confirm moves a pending or scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return s.transition(ctx, id, appointments.StatusConfirmed, events.TypeConfirmed)
}

// Cancel terminates an appointment and releases its seat.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return s.transition(ctx, id, appointments.StatusCancelled, events.TypeCancelled)
}

// Start moves a confirmed appointment to in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return s.transition(ctx, id, appointments.StatusInProgress, "")
}

// Complete finishes an in-progress appointment; the patient becomes
// eligible to leave a verified review for the doctor.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return s.transition(ctx, id, appointments.StatusCompleted, events.TypeCompleted)
}

// transition validates against the persisted status inside the same
// transaction that writes the new one, so concurrent transitions cannot
// both succeed.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to appointments.Status, eventType events.Type) (*appointments.Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicbook.appointment_id", id.String()),
		attribute.String("clinicbook.to_status", string(to)),
	)

	now := s.now()
	var appt *appointments.Appointment

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := appointments.ValidateTransition(cur.Status, to); err != nil {
			return fmt.Errorf("%w: %s -> %s", err, cur.Status, to)
		}
		if err := tx.SetAppointmentStatus(ctx, id, to, now); err != nil {
			return err
		}

		// The seat is freed the moment the appointment leaves the
		// capacity-holding set, keeping booked_count equal to the holding
		// count at every commit.
		if cur.Status.HoldsCapacity() && !to.HoldsCapacity() {
			if _, err := tx.SlotForUpdate(ctx, cur.SlotID); err != nil {
				return err
			}
			if _, err := s.reconciler.Apply(ctx, tx, cur.SlotID, -1); err != nil {
				return err
			}
		}

		if eventType != "" {
			if err := tx.AppendEvent(ctx, events.NewAppointmentEvent(
				eventType, cur.ID, cur.DoctorID, cur.PatientID, cur.SlotID, now)); err != nil {
				return err
			}
		}

		cur.Status = to
		cur.UpdatedAt = now
		appt = cur
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveTransition(string(to))
	s.logger.Info("appointment transitioned",
		"appointment_id", appt.ID,
		"status", appt.Status,
	)
	return appt, nil
}

// ListAvailability returns a doctor's unarchived slots in [from, to),
// annotated with the derived availability flag. Lock-free read.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]slots.Slot, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id required", ErrInvalidRequest)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: empty date range", ErrInvalidRequest)
	}
	return s.store.ListAvailability(ctx, doctorID, from, to)
}

// GetAppointment is a lock-free read of one appointment.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

// RecountSlot rebuilds a slot's fill counter from its appointments. Repair
// path for operators.
func (s *Service) RecountSlot(ctx context.Context, slotID uuid.UUID) (*slots.Slot, error) {
	var slot *slots.Slot
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		slot, err = s.reconciler.Recount(ctx, tx, slotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("slot recounted", "slot_id", slotID, "booked_count", slot.BookedCount)
	return slot, nil
}

func reserveOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrPatientDoubleBooked):
		return "double_booked"
	case errors.Is(err, slots.ErrBusy):
		return "busy"
	case errors.Is(err, ErrSlotInPast), errors.Is(err, ErrOutOfBookingHorizon), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, slots.ErrNotFound), errors.Is(err, doctors.ErrNotVerified):
		return "rejected"
	default:
		return "error"
	}
}
