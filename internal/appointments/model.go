package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrBusy is returned when an appointment row could not be locked
	// within the configured wait. Callers may retry.
	ErrBusy = errors.New("appointment busy")

	// ErrInvalidTransition is returned when a status change is not permitted
	// from the appointment's current persisted status.
	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

// Appointment is a patient's claim on one seat of an availability slot.
// Rows are never deleted; terminal statuses are retained for audit.
type Appointment struct {
	ID        uuid.UUID `json:"id"`
	SlotID    uuid.UUID `json:"slot_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Status    Status    `json:"status"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes,omitempty"`
	FeeCents  int64     `json:"fee_cents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
