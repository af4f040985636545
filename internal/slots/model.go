package slots

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a slot does not exist or is archived.
	ErrNotFound = errors.New("slot not found")

	// ErrBusy is returned when the slot's row lock could not be acquired
	// within the configured wait. Callers may retry.
	ErrBusy = errors.New("slot is busy, retry")

	// ErrInvalidWindow is returned when a slot's time window is malformed.
	ErrInvalidWindow = errors.New("slot window must satisfy start < end")

	// ErrInvalidCapacity is returned when capacity is below one.
	ErrInvalidCapacity = errors.New("slot capacity must be at least 1")
)

// Slot is a bounded time window at a clinic during which a doctor accepts
// up to Capacity simultaneous appointments. BookedCount and IsAvailable are
// derived and only ever written by the capacity reconciler.
type Slot struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	ClinicID    uuid.UUID `json:"clinic_id"`
	Day         time.Time `json:"day"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Capacity    int        `json:"capacity"`
	BookedCount int        `json:"booked_count"`
	IsAvailable bool       `json:"is_available"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Archived reports whether the slot has been withdrawn from the directory.
// Archived slots take no new reservations, but appointments already on them
// still transition and release their seats normally.
func (s *Slot) Archived() bool {
	return s.ArchivedAt != nil
}

// Validate checks the window and capacity of a slot being published.
func (s *Slot) Validate() error {
	if !s.StartAt.Before(s.EndAt) {
		return ErrInvalidWindow
	}
	if s.Capacity < 1 {
		return ErrInvalidCapacity
	}
	return nil
}

// Overlaps reports whether the half-open windows [s.StartAt, s.EndAt) and
// [start, end) intersect.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && start.Before(s.EndAt)
}

// InPast reports whether the slot's window has already started at now.
func (s *Slot) InPast(now time.Time) bool {
	return !s.StartAt.After(now)
}

// Remaining returns how many seats are still open.
func (s *Slot) Remaining() int {
	if r := s.Capacity - s.BookedCount; r > 0 {
		return r
	}
	return 0
}
