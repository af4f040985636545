package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/booking"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// BookingHandler exposes reservation and appointment lifecycle endpoints.
type BookingHandler struct {
	service *booking.Service
	logger  *logging.Logger
}

// NewBookingHandler creates a booking handler.
func NewBookingHandler(service *booking.Service, logger *logging.Logger) *BookingHandler {
	if service == nil {
		panic("handlers: booking service is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{service: service, logger: logger}
}

type reserveBody struct {
	PatientID string `json:"patient_id"`
	SlotID    string `json:"slot_id"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

// Reserve books a seat on a slot.
// Route: POST /appointments
func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var body reserveBody
	if !decodeJSON(w, r, &body) {
		return
	}

	patientID, err := uuid.Parse(body.PatientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "patient_id must be a UUID", Code: "invalid_request"})
		return
	}
	slotID, err := uuid.Parse(body.SlotID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "slot_id must be a UUID", Code: "invalid_request"})
		return
	}

	appt, err := h.service.Reserve(r.Context(), booking.ReserveRequest{
		PatientID: patientID,
		SlotID:    slotID,
		Type:      body.Type,
		Notes:     body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// Get returns a single appointment.
// Route: GET /appointments/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.service.GetAppointment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Confirm moves an appointment to confirmed.
// Route: POST /appointments/{id}/confirm
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

// Cancel cancels an appointment and frees its seat.
// Route: POST /appointments/{id}/cancel
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

// Start marks an appointment in progress.
// Route: POST /appointments/{id}/start
func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

// Complete marks an appointment completed.
// Route: POST /appointments/{id}/complete
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)) {

	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// ListAvailability returns a doctor's open slots in a window.
// Route: GET /doctors/{id}/availability?from=...&to=...
func (h *BookingHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	now := time.Now().UTC()
	from, to := now, now.AddDate(0, 0, 30)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "from must be RFC3339", Code: "invalid_request"})
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "to must be RFC3339", Code: "invalid_request"})
			return
		}
		to = parsed
	}

	listed, err := h.service.ListAvailability(r.Context(), doctorID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listed)
}

// RecountSlot rebuilds a slot's fill counter from its appointments. Repair
// path for operators; normal code never drifts.
// Route: POST /admin/slots/{id}/recount
func (h *BookingHandler) RecountSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	slot, err := h.service.RecountSlot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: name + " must be a UUID", Code: "invalid_request"})
		return uuid.Nil, false
	}
	return id, true
}
