// Package storage defines the transactional store the booking core runs
// against, with a Postgres backend for production and an in-memory backend
// for tests and single-process development.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/slots"
)

// Store provides atomic units of work plus lock-free reads. Everything
// inside WithinTx commits or rolls back as one; the engine performs every
// invariant check and derived update there.
type Store interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error

	GetSlot(ctx context.Context, id uuid.UUID) (*slots.Slot, error)
	ListAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]slots.Slot, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)

	// ListStalePending returns ids of pending appointments created before
	// the cutoff, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)

	// Outbox drain surface for the event deliverer.
	events.Source
}

// Tx is one open unit of work. The slot and doctor slices reuse the
// interfaces their owning packages declare so the reconciler and flag
// engine run against the same transaction.
type Tx interface {
	slots.CounterStore
	doctors.FlagStore

	AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	InsertAppointment(ctx context.Context, appt *appointments.Appointment) error
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, status appointments.Status, at time.Time) error

	// PatientOverlapExists reports whether the patient already holds a
	// capacity-holding appointment whose slot window intersects
	// [start, end).
	PatientOverlapExists(ctx context.Context, patientID uuid.UUID, start, end time.Time) (bool, error)

	// HasCompletedAppointment reports whether the patient completed an
	// appointment with the doctor; it decides review verification.
	HasCompletedAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)

	InsertDoctor(ctx context.Context, doc *doctors.Doctor) error
	UpdateDoctorProfile(ctx context.Context, doctorID uuid.UUID, profile doctors.Profile) error
	InsertClinicLink(ctx context.Context, doctorID, clinicID uuid.UUID) error
	DeleteClinicLink(ctx context.Context, doctorID, clinicID uuid.UUID) error
	InsertSlot(ctx context.Context, slot *slots.Slot) error
	ArchiveSlot(ctx context.Context, id uuid.UUID) error
	InsertReview(ctx context.Context, review *doctors.Review) error

	AppendEvent(ctx context.Context, event events.AppointmentEventV1) error
}
