package doctors

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

// FlagStore is the slice of a storage transaction the flag engine reads
// source facts from and writes derived fields through. Every method runs in
// the same transaction as the write that changed the underlying fact.
type FlagStore interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	CountClinicLinks(ctx context.Context, doctorID uuid.UUID) (int, error)
	CountSlots(ctx context.Context, doctorID uuid.UUID) (int, error)
	ListVerifiedReviews(ctx context.Context, doctorID uuid.UUID) ([]Review, error)
	SetOnboarding(ctx context.Context, doctorID uuid.UUID, flags Onboarding) error
	SetRating(ctx context.Context, doctorID uuid.UUID, rating float64, count int) error
}

// FlagEngine recomputes a doctor's onboarding flags and rating aggregate as
// pure functions of current state. Callers invoke the matching hook
// synchronously after each source mutation, inside the mutating transaction;
// there is no manual override path.
type FlagEngine struct {
	logger *logging.Logger
}

// NewFlagEngine creates a flag engine.
func NewFlagEngine(logger *logging.Logger) *FlagEngine {
	if logger == nil {
		logger = logging.Default()
	}
	return &FlagEngine{logger: logger}
}

// OnProfileChanged rederives profile_completed after a profile write.
func (e *FlagEngine) OnProfileChanged(ctx context.Context, st FlagStore, doctorID uuid.UUID) error {
	doc, err := st.GetDoctor(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("doctors: flag recompute load: %w", err)
	}

	flags := doc.Onboarding
	flags.ProfileCompleted = doc.Profile.Complete()
	if flags == doc.Onboarding {
		return nil
	}
	if err := st.SetOnboarding(ctx, doctorID, flags); err != nil {
		return fmt.Errorf("doctors: set onboarding: %w", err)
	}
	e.logger.Debug("onboarding recomputed", "doctor_id", doctorID, "profile_completed", flags.ProfileCompleted)
	return nil
}

// OnClinicLinkChanged rederives clinics_added after a clinic link insert or
// delete.
func (e *FlagEngine) OnClinicLinkChanged(ctx context.Context, st FlagStore, doctorID uuid.UUID) error {
	doc, err := st.GetDoctor(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("doctors: flag recompute load: %w", err)
	}

	links, err := st.CountClinicLinks(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("doctors: count clinic links: %w", err)
	}

	flags := doc.Onboarding
	flags.ClinicsAdded = links > 0
	if flags == doc.Onboarding {
		return nil
	}
	if err := st.SetOnboarding(ctx, doctorID, flags); err != nil {
		return fmt.Errorf("doctors: set onboarding: %w", err)
	}
	e.logger.Debug("onboarding recomputed", "doctor_id", doctorID, "clinics_added", flags.ClinicsAdded)
	return nil
}

// OnAvailabilityChanged rederives availability_created after a slot is
// published or archived.
func (e *FlagEngine) OnAvailabilityChanged(ctx context.Context, st FlagStore, doctorID uuid.UUID) error {
	doc, err := st.GetDoctor(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("doctors: flag recompute load: %w", err)
	}

	count, err := st.CountSlots(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("doctors: count slots: %w", err)
	}

	flags := doc.Onboarding
	flags.AvailabilityCreated = count > 0
	if flags == doc.Onboarding {
		return nil
	}
	if err := st.SetOnboarding(ctx, doctorID, flags); err != nil {
		return fmt.Errorf("doctors: set onboarding: %w", err)
	}
	e.logger.Debug("onboarding recomputed", "doctor_id", doctorID, "availability_created", flags.AvailabilityCreated)
	return nil
}

// OnReviewChanged recomputes the rating aggregate from verified reviews.
func (e *FlagEngine) OnReviewChanged(ctx context.Context, st FlagStore, doctorID uuid.UUID) error {
	reviews, err := st.ListVerifiedReviews(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("doctors: list verified reviews: %w", err)
	}

	rating, count := AggregateRating(reviews)
	if err := st.SetRating(ctx, doctorID, rating, count); err != nil {
		return fmt.Errorf("doctors: set rating: %w", err)
	}
	e.logger.Debug("rating recomputed", "doctor_id", doctorID, "rating", rating, "count", count)
	return nil
}
