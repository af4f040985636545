package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/directory"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// DirectoryHandler exposes the doctor registry: registration, profiles,
// clinic links, availability publishing, and reviews.
type DirectoryHandler struct {
	service *directory.Service
	logger  *logging.Logger
}

// NewDirectoryHandler creates a directory handler.
func NewDirectoryHandler(service *directory.Service, logger *logging.Logger) *DirectoryHandler {
	if service == nil {
		panic("handlers: directory service is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DirectoryHandler{service: service, logger: logger}
}

type registerDoctorBody struct {
	Name     string `json:"name"`
	FeeCents int64  `json:"fee_cents"`
}

// Register enrolls a new doctor.
// Route: POST /doctors
func (h *DirectoryHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerDoctorBody
	if !decodeJSON(w, r, &body) {
		return
	}
	doc, err := h.service.RegisterDoctor(r.Context(), directory.RegisterRequest{
		Name:     body.Name,
		FeeCents: body.FeeCents,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// Get returns a doctor's public record.
// Route: GET /doctors/{id}
func (h *DirectoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.service.GetDoctor(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// UpdateProfile replaces a doctor's profile.
// Route: PUT /doctors/{id}/profile
func (h *DirectoryHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var profile doctors.Profile
	if !decodeJSON(w, r, &profile) {
		return
	}
	doc, err := h.service.UpdateProfile(r.Context(), id, profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// AddClinic links a doctor to a clinic.
// Route: POST /doctors/{id}/clinics/{clinicID}
func (h *DirectoryHandler) AddClinic(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	clinicID, ok := parseIDParam(w, r, "clinicID")
	if !ok {
		return
	}
	if err := h.service.AddClinic(r.Context(), doctorID, clinicID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveClinic unlinks a doctor from a clinic.
// Route: DELETE /doctors/{id}/clinics/{clinicID}
func (h *DirectoryHandler) RemoveClinic(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	clinicID, ok := parseIDParam(w, r, "clinicID")
	if !ok {
		return
	}
	if err := h.service.RemoveClinic(r.Context(), doctorID, clinicID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type publishSlotBody struct {
	ClinicID string    `json:"clinic_id"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Capacity int       `json:"capacity"`
}

// PublishSlot opens a bookable window for a doctor.
// Route: POST /doctors/{id}/slots
func (h *DirectoryHandler) PublishSlot(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var body publishSlotBody
	if !decodeJSON(w, r, &body) {
		return
	}
	clinicID, err := uuid.Parse(body.ClinicID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "clinic_id must be a UUID", Code: "invalid_request"})
		return
	}

	slot, err := h.service.PublishSlot(r.Context(), directory.PublishSlotRequest{
		DoctorID: doctorID,
		ClinicID: clinicID,
		StartAt:  body.StartAt,
		EndAt:    body.EndAt,
		Capacity: body.Capacity,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// ArchiveSlot withdraws a published window.
// Route: DELETE /slots/{id}
func (h *DirectoryHandler) ArchiveSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.ArchiveSlot(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewBody struct {
	PatientID string `json:"patient_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// SubmitReview records a patient's review of a doctor.
// Route: POST /doctors/{id}/reviews
func (h *DirectoryHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var body reviewBody
	if !decodeJSON(w, r, &body) {
		return
	}
	patientID, err := uuid.Parse(body.PatientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "patient_id must be a UUID", Code: "invalid_request"})
		return
	}

	review, err := h.service.SubmitReview(r.Context(), directory.ReviewRequest{
		DoctorID:  doctorID,
		PatientID: patientID,
		Rating:    body.Rating,
		Comment:   body.Comment,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}
