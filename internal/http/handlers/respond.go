package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/booking"
	"github.com/clinicbook/booking-platform/internal/directory"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/slots"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes. Contended slots get
// 503 with a Retry-After hint so well-behaved clients back off and retry.
func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"

	switch {
	case errors.Is(err, slots.ErrNotFound),
		errors.Is(err, appointments.ErrNotFound),
		errors.Is(err, doctors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrSlotFull):
		status, code = http.StatusConflict, "slot_full"
	case errors.Is(err, booking.ErrPatientDoubleBooked):
		status, code = http.StatusConflict, "double_booked"
	case errors.Is(err, appointments.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, directory.ErrReviewNotAllowed):
		status, code = http.StatusForbidden, "review_not_allowed"
	case errors.Is(err, booking.ErrSlotInPast),
		errors.Is(err, booking.ErrOutOfBookingHorizon),
		errors.Is(err, doctors.ErrNotVerified):
		status, code = http.StatusUnprocessableEntity, "not_bookable"
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, directory.ErrInvalidInput),
		errors.Is(err, slots.ErrInvalidWindow),
		errors.Is(err, slots.ErrInvalidCapacity),
		errors.Is(err, doctors.ErrInvalidRating):
		status, code = http.StatusBadRequest, "invalid_request"
	case booking.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		status, code = http.StatusServiceUnavailable, "busy"
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Code: "invalid_request"})
		return false
	}
	return true
}
