package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/slots"
	"github.com/clinicbook/booking-platform/internal/storage"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// ErrReviewNotAllowed is returned when a patient reviews a doctor they
// never completed an appointment with.
var ErrReviewNotAllowed = errors.New("directory: patient has no completed appointment with this doctor")

// ErrInvalidInput is returned for requests that fail validation.
var ErrInvalidInput = errors.New("directory: invalid input")

// Service manages the doctor registry: registration, profiles, clinic
// links, published availability, and patient reviews. Every mutation runs
// the derived-flag engine inside the same transaction so onboarding flags
// and ratings can never drift from the rows they summarize.
type Service struct {
	store  storage.Store
	flags  *doctors.FlagEngine
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a directory service.
func NewService(store storage.Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("directory: store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:  store,
		flags:  doctors.NewFlagEngine(logger),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterRequest carries the fields needed to enroll a doctor.
type RegisterRequest struct {
	Name     string
	FeeCents int64
}

// RegisterDoctor enrolls a new doctor. Doctors start unverified and
// cannot take bookings until verification.
func (s *Service) RegisterDoctor(ctx context.Context, req RegisterRequest) (*doctors.Doctor, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if req.FeeCents < 0 {
		return nil, fmt.Errorf("%w: fee must not be negative", ErrInvalidInput)
	}

	now := s.now().UTC()
	doc := &doctors.Doctor{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(req.Name),
		Verified:  false,
		Active:    true,
		FeeCents:  req.FeeCents,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.InsertDoctor(ctx, doc)
	})
	if err != nil {
		return nil, fmt.Errorf("directory: register doctor: %w", err)
	}

	s.logger.Info("doctor registered", "doctor_id", doc.ID)
	return doc, nil
}

// UpdateProfile replaces a doctor's profile and recomputes the
// profile-completed onboarding flag.
func (s *Service) UpdateProfile(ctx context.Context, doctorID uuid.UUID, profile doctors.Profile) (*doctors.Doctor, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrInvalidInput)
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpdateDoctorProfile(ctx, doctorID, profile); err != nil {
			return err
		}
		return s.flags.OnProfileChanged(ctx, tx, doctorID)
	})
	if err != nil {
		return nil, fmt.Errorf("directory: update profile: %w", err)
	}
	return s.store.GetDoctor(ctx, doctorID)
}

// AddClinic links a doctor to a clinic. Linking the same clinic twice is
// a no-op.
func (s *Service) AddClinic(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	if doctorID == uuid.Nil || clinicID == uuid.Nil {
		return fmt.Errorf("%w: doctor and clinic ids are required", ErrInvalidInput)
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertClinicLink(ctx, doctorID, clinicID); err != nil {
			return err
		}
		return s.flags.OnClinicLinkChanged(ctx, tx, doctorID)
	})
	if err != nil {
		return fmt.Errorf("directory: add clinic: %w", err)
	}
	return nil
}

// RemoveClinic unlinks a doctor from a clinic.
func (s *Service) RemoveClinic(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	if doctorID == uuid.Nil || clinicID == uuid.Nil {
		return fmt.Errorf("%w: doctor and clinic ids are required", ErrInvalidInput)
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteClinicLink(ctx, doctorID, clinicID); err != nil {
			return err
		}
		return s.flags.OnClinicLinkChanged(ctx, tx, doctorID)
	})
	if err != nil {
		return fmt.Errorf("directory: remove clinic: %w", err)
	}
	return nil
}

// PublishSlotRequest carries the fields needed to open a bookable window.
type PublishSlotRequest struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	StartAt  time.Time
	EndAt    time.Time
	Capacity int
}

// PublishSlot opens a new availability window for a doctor at a clinic.
func (s *Service) PublishSlot(ctx context.Context, req PublishSlotRequest) (*slots.Slot, error) {
	if req.DoctorID == uuid.Nil || req.ClinicID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor and clinic ids are required", ErrInvalidInput)
	}

	now := s.now().UTC()
	slot := &slots.Slot{
		ID:          uuid.New(),
		DoctorID:    req.DoctorID,
		ClinicID:    req.ClinicID,
		Day:         req.StartAt.UTC().Truncate(24 * time.Hour),
		StartAt:     req.StartAt.UTC(),
		EndAt:       req.EndAt.UTC(),
		Capacity:    req.Capacity,
		IsAvailable: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetDoctor(ctx, req.DoctorID); err != nil {
			return err
		}
		if err := tx.InsertSlot(ctx, slot); err != nil {
			return err
		}
		return s.flags.OnAvailabilityChanged(ctx, tx, req.DoctorID)
	})
	if err != nil {
		return nil, fmt.Errorf("directory: publish slot: %w", err)
	}

	s.logger.Info("slot published", "slot_id", slot.ID, "doctor_id", req.DoctorID)
	return slot, nil
}

// ArchiveSlot withdraws a published window from the directory. Existing
// appointments on the slot are untouched.
func (s *Service) ArchiveSlot(ctx context.Context, slotID uuid.UUID) error {
	if slotID == uuid.Nil {
		return fmt.Errorf("%w: slot id is required", ErrInvalidInput)
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		slot, err := tx.SlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if err := tx.ArchiveSlot(ctx, slotID); err != nil {
			return err
		}
		return s.flags.OnAvailabilityChanged(ctx, tx, slot.DoctorID)
	})
	if err != nil {
		return fmt.Errorf("directory: archive slot: %w", err)
	}
	return nil
}

// ReviewRequest carries the fields needed to submit a review.
type ReviewRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Rating    int
	Comment   string
}

// SubmitReview records a patient's review of a doctor. Only patients with
// a completed appointment may review; the review is marked verified and
// the doctor's aggregate rating is recomputed in the same transaction.
func (s *Service) SubmitReview(ctx context.Context, req ReviewRequest) (*doctors.Review, error) {
	if req.DoctorID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor and patient ids are required", ErrInvalidInput)
	}

	review := &doctors.Review{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: s.now().UTC(),
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetDoctor(ctx, req.DoctorID); err != nil {
			return err
		}
		completed, err := tx.HasCompletedAppointment(ctx, req.PatientID, req.DoctorID)
		if err != nil {
			return err
		}
		if !completed {
			return ErrReviewNotAllowed
		}
		review.Verified = true

		if err := tx.InsertReview(ctx, review); err != nil {
			return err
		}
		return s.flags.OnReviewChanged(ctx, tx, req.DoctorID)
	})
	if err != nil {
		return nil, fmt.Errorf("directory: submit review: %w", err)
	}
	return review, nil
}

// GetDoctor returns a doctor by id.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	return s.store.GetDoctor(ctx, id)
}
