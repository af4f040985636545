package booking

import (
	"errors"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/slots"
)

var (
	// ErrSlotInPast is returned when the slot's window has already started.
	ErrSlotInPast = errors.New("slot is in the past")

	// ErrSlotFull is returned when a reservation loses the race for the
	// slot's last seat. Callers should pick a different slot rather than
	// blindly retry the same one.
	ErrSlotFull = errors.New("slot is fully booked")

	// ErrPatientDoubleBooked is returned when the patient already holds an
	// appointment overlapping the requested window.
	ErrPatientDoubleBooked = errors.New("patient already booked for this window")

	// ErrOutOfBookingHorizon is returned when the slot's date is further
	// ahead than the configured horizon.
	ErrOutOfBookingHorizon = errors.New("slot is beyond the booking horizon")

	// ErrInvalidRequest is returned for malformed input, before any
	// transaction opens.
	ErrInvalidRequest = errors.New("invalid reservation request")
)

// IsRetryable reports whether the caller may usefully retry the same
// request. A full slot is not retryable against the same slot; a lock wait
// timeout is.
func IsRetryable(err error) bool {
	return errors.Is(err, slots.ErrBusy) || errors.Is(err, appointments.ErrBusy)
}
