package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/observability/metrics"
	"github.com/clinicbook/booking-platform/internal/slots"
	"github.com/clinicbook/booking-platform/internal/storage"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Sweeper expires pending appointments whose confirmation deadline has
// passed and returns their seats to the slot. Each appointment is handled
// in its own transaction, so one failure never blocks the rest of a pass.
type Sweeper struct {
	store      storage.Store
	reconciler slots.Reconciler
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger

	pendingTTL time.Duration
	interval   time.Duration
	batchSize  int

	now func() time.Time
}

// Options configures the sweeper. Zero values fall back to defaults.
type Options struct {
	PendingTTL time.Duration
	Interval   time.Duration
	BatchSize  int
}

func (o *Options) withDefaults() Options {
	out := Options{PendingTTL: 24 * time.Hour, Interval: time.Hour, BatchSize: 100}
	if o == nil {
		return out
	}
	if o.PendingTTL > 0 {
		out.PendingTTL = o.PendingTTL
	}
	if o.Interval > 0 {
		out.Interval = o.Interval
	}
	if o.BatchSize > 0 {
		out.BatchSize = o.BatchSize
	}
	return out
}

// New creates a sweeper.
func New(store storage.Store, m *metrics.BookingMetrics, logger *logging.Logger, opts *Options) *Sweeper {
	if store == nil {
		panic("sweeper: store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := opts.withDefaults()
	return &Sweeper{
		store:      store,
		metrics:    m,
		logger:     logger,
		pendingTTL: o.PendingTTL,
		interval:   o.Interval,
		batchSize:  o.BatchSize,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps on a fixed interval until the context is cancelled. One pass
// runs immediately on startup so a restarted process catches up without
// waiting a full interval.
func (s *Sweeper) Run(ctx context.Context) {
	if n, err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("sweeper: initial pass failed", "error", err)
	} else if n > 0 {
		s.logger.Info("sweeper: initial pass complete", "expired", n)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper: stopping")
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("sweeper: pass failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("sweeper: pass complete", "expired", n)
			}
		}
	}
}

// SweepOnce expires up to one batch of stale pending appointments and
// returns how many were expired. Appointments that fail to expire are
// logged and left for the next pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.pendingTTL)
	ids, err := s.store.ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list stale pending: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	expired := 0
	for _, id := range ids {
		if err := s.expireOne(ctx, id); err != nil {
			if errors.Is(err, appointments.ErrInvalidTransition) || errors.Is(err, appointments.ErrNotFound) {
				// Someone confirmed or cancelled it between listing and
				// locking. Nothing to do.
				continue
			}
			s.logger.Error("sweeper: failed to expire appointment", "appointment_id", id, "error", err)
			continue
		}
		expired++
	}
	s.metrics.ObserveExpired(expired)
	return expired, nil
}

func (s *Sweeper) expireOne(ctx context.Context, id uuid.UUID) error {
	return s.store.WithinTx(ctx, func(tx storage.Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != appointments.StatusPending {
			return appointments.ErrInvalidTransition
		}

		now := s.now().UTC()
		if err := tx.SetAppointmentStatus(ctx, id, appointments.StatusExpired, now); err != nil {
			return err
		}

		if _, err := tx.SlotForUpdate(ctx, appt.SlotID); err != nil {
			return fmt.Errorf("lock slot: %w", err)
		}
		if _, err := s.reconciler.Apply(ctx, tx, appt.SlotID, -1); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}

		return tx.AppendEvent(ctx, events.NewAppointmentEvent(
			events.TypeExpired, appt.ID, appt.DoctorID, appt.PatientID, appt.SlotID, now))
	})
}
