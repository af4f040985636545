package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/slots"
	"github.com/clinicbook/booking-platform/internal/storage"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	svc := NewService(store, nil).WithClock(func() time.Time { return testNow })
	return svc, store
}

func registerDoctor(t *testing.T, svc *Service) *doctors.Doctor {
	t.Helper()
	doc, err := svc.RegisterDoctor(context.Background(), RegisterRequest{Name: "Dr. Adeyemi", FeeCents: 20000})
	require.NoError(t, err)
	return doc
}

func completeProfile() doctors.Profile {
	return doctors.Profile{
		Specialty:       "dermatology",
		ExperienceYears: 9,
		LicenseNumber:   "MD-44812",
		Bio:             "Board-certified dermatologist.",
	}
}

func TestRegisterDoctor(t *testing.T) {
	svc, _ := newService(t)

	doc := registerDoctor(t, svc)
	assert.Equal(t, "Dr. Adeyemi", doc.Name)
	assert.False(t, doc.Verified, "new doctors start unverified")
	assert.True(t, doc.Active)
	assert.False(t, doc.Bookable())

	_, err := svc.RegisterDoctor(context.Background(), RegisterRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.RegisterDoctor(context.Background(), RegisterRequest{Name: "Dr. X", FeeCents: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateProfileSetsOnboardingFlag(t *testing.T) {
	svc, _ := newService(t)
	doc := registerDoctor(t, svc)

	updated, err := svc.UpdateProfile(context.Background(), doc.ID, doctors.Profile{Specialty: "dermatology"})
	require.NoError(t, err)
	assert.False(t, updated.Onboarding.ProfileCompleted, "partial profile does not complete onboarding")

	updated, err = svc.UpdateProfile(context.Background(), doc.ID, completeProfile())
	require.NoError(t, err)
	assert.True(t, updated.Onboarding.ProfileCompleted)

	// Clearing a required field flips the flag back off.
	updated, err = svc.UpdateProfile(context.Background(), doc.ID, doctors.Profile{Specialty: "dermatology"})
	require.NoError(t, err)
	assert.False(t, updated.Onboarding.ProfileCompleted)
}

func TestClinicLinksDriveOnboardingFlag(t *testing.T) {
	svc, _ := newService(t)
	doc := registerDoctor(t, svc)
	clinic := uuid.New()

	require.NoError(t, svc.AddClinic(context.Background(), doc.ID, clinic))

	got, err := svc.GetDoctor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Onboarding.ClinicsAdded)

	// Re-linking the same clinic is a no-op, not an error.
	require.NoError(t, svc.AddClinic(context.Background(), doc.ID, clinic))

	require.NoError(t, svc.RemoveClinic(context.Background(), doc.ID, clinic))
	got, err = svc.GetDoctor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Onboarding.ClinicsAdded, "removing the last link clears the flag")
}

func TestPublishSlot(t *testing.T) {
	svc, store := newService(t)
	doc := registerDoctor(t, svc)
	start := testNow.Add(48 * time.Hour)

	slot, err := svc.PublishSlot(context.Background(), PublishSlotRequest{
		DoctorID: doc.ID,
		ClinicID: uuid.New(),
		StartAt:  start,
		EndAt:    start.Add(30 * time.Minute),
		Capacity: 3,
	})
	require.NoError(t, err)
	assert.True(t, slot.IsAvailable)
	assert.Zero(t, slot.BookedCount)

	got, err := svc.GetDoctor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Onboarding.AvailabilityCreated)

	stored, err := store.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, stored.ID)
}

func TestPublishSlotValidation(t *testing.T) {
	svc, _ := newService(t)
	doc := registerDoctor(t, svc)
	start := testNow.Add(48 * time.Hour)

	_, err := svc.PublishSlot(context.Background(), PublishSlotRequest{
		DoctorID: doc.ID, ClinicID: uuid.New(),
		StartAt: start, EndAt: start, Capacity: 1,
	})
	assert.ErrorIs(t, err, slots.ErrInvalidWindow)

	_, err = svc.PublishSlot(context.Background(), PublishSlotRequest{
		DoctorID: doc.ID, ClinicID: uuid.New(),
		StartAt: start, EndAt: start.Add(time.Hour), Capacity: 0,
	})
	assert.ErrorIs(t, err, slots.ErrInvalidCapacity)

	_, err = svc.PublishSlot(context.Background(), PublishSlotRequest{
		DoctorID: uuid.New(), ClinicID: uuid.New(),
		StartAt: start, EndAt: start.Add(time.Hour), Capacity: 1,
	})
	assert.ErrorIs(t, err, doctors.ErrNotFound)
}

func TestArchiveSlotClearsFlagWhenLastSlotGoes(t *testing.T) {
	svc, store := newService(t)
	doc := registerDoctor(t, svc)
	start := testNow.Add(48 * time.Hour)

	slot, err := svc.PublishSlot(context.Background(), PublishSlotRequest{
		DoctorID: doc.ID, ClinicID: uuid.New(),
		StartAt: start, EndAt: start.Add(time.Hour), Capacity: 1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.ArchiveSlot(context.Background(), slot.ID))

	_, err = store.GetSlot(context.Background(), slot.ID)
	assert.ErrorIs(t, err, slots.ErrNotFound)

	got, err := svc.GetDoctor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Onboarding.AvailabilityCreated)

	err = svc.ArchiveSlot(context.Background(), slot.ID)
	assert.ErrorIs(t, err, slots.ErrNotFound)
}

func completedAppointment(t *testing.T, store *storage.Memory, doctorID, patientID uuid.UUID) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertAppointment(context.Background(), &appointments.Appointment{
			ID:        uuid.New(),
			SlotID:    uuid.New(),
			DoctorID:  doctorID,
			PatientID: patientID,
			Status:    appointments.StatusCompleted,
			CreatedAt: testNow,
			UpdatedAt: testNow,
		})
	})
	require.NoError(t, err)
}

func TestSubmitReviewRequiresCompletedAppointment(t *testing.T) {
	svc, store := newService(t)
	doc := registerDoctor(t, svc)
	patient := uuid.New()

	_, err := svc.SubmitReview(context.Background(), ReviewRequest{
		DoctorID: doc.ID, PatientID: patient, Rating: 5,
	})
	assert.ErrorIs(t, err, ErrReviewNotAllowed)

	completedAppointment(t, store, doc.ID, patient)

	review, err := svc.SubmitReview(context.Background(), ReviewRequest{
		DoctorID: doc.ID, PatientID: patient, Rating: 5, Comment: "Thorough and kind.",
	})
	require.NoError(t, err)
	assert.True(t, review.Verified)

	got, err := svc.GetDoctor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Rating)
	assert.Equal(t, 1, got.RatingCount)
}

func TestSubmitReviewAggregatesRating(t *testing.T) {
	svc, store := newService(t)
	doc := registerDoctor(t, svc)

	for _, rating := range []int{5, 4} {
		patient := uuid.New()
		completedAppointment(t, store, doc.ID, patient)
		_, err := svc.SubmitReview(context.Background(), ReviewRequest{
			DoctorID: doc.ID, PatientID: patient, Rating: rating,
		})
		require.NoError(t, err)
	}

	got, err := svc.GetDoctor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, got.Rating, 0.001)
	assert.Equal(t, 2, got.RatingCount)
}

func TestSubmitReviewValidation(t *testing.T) {
	svc, store := newService(t)
	doc := registerDoctor(t, svc)
	patient := uuid.New()
	completedAppointment(t, store, doc.ID, patient)

	_, err := svc.SubmitReview(context.Background(), ReviewRequest{
		DoctorID: doc.ID, PatientID: patient, Rating: 0,
	})
	assert.ErrorIs(t, err, doctors.ErrInvalidRating)

	_, err = svc.SubmitReview(context.Background(), ReviewRequest{
		DoctorID: doc.ID, PatientID: patient, Rating: 6,
	})
	assert.ErrorIs(t, err, doctors.ErrInvalidRating)

	_, err = svc.SubmitReview(context.Background(), ReviewRequest{
		DoctorID: uuid.New(), PatientID: patient, Rating: 4,
	})
	assert.ErrorIs(t, err, doctors.ErrNotFound)
}
