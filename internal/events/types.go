package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the appointment transition events the core emits.
type Type string

const (
	TypeCreated   Type = "appointment.created"
	TypeConfirmed Type = "appointment.confirmed"
	TypeCancelled Type = "appointment.cancelled"
	TypeExpired   Type = "appointment.expired"
	TypeCompleted Type = "appointment.completed"
)

// AppointmentEventV1 is the payload handed to the notification/audit
// collaborator. Delivery is at-least-once; consumers must tolerate
// duplicates.
type AppointmentEventV1 struct {
	EventID       string    `json:"event_id"`
	EventType     Type      `json:"event_type"`
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	SlotID        string    `json:"slot_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewAppointmentEvent builds a payload for one transition.
func NewAppointmentEvent(t Type, appointmentID, doctorID, patientID, slotID uuid.UUID, at time.Time) AppointmentEventV1 {
	return AppointmentEventV1{
		EventID:       uuid.NewString(),
		EventType:     t,
		AppointmentID: appointmentID.String(),
		DoctorID:      doctorID.String(),
		PatientID:     patientID.String(),
		SlotID:        slotID.String(),
		OccurredAt:    at.UTC(),
	}
}

// OutboxEntry is a persisted, not-yet-delivered event.
type OutboxEntry struct {
	ID        uuid.UUID
	Type      Type
	Payload   json.RawMessage
	CreatedAt time.Time
}
