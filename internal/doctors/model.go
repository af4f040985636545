package doctors

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a doctor does not exist.
	ErrNotFound = errors.New("doctor not found")

	// ErrNotVerified is returned when booking is attempted against an
	// unverified or deactivated doctor.
	ErrNotVerified = errors.New("doctor is not verified")

	// ErrInvalidRating is returned for review ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Doctor carries primary facts (verification, fee, profile) and derived
// fields (onboarding flags, rating) that only the flag engine writes.
type Doctor struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Verified    bool       `json:"verified"`
	Active      bool       `json:"active"`
	FeeCents    int64      `json:"fee_cents"`
	Profile     Profile    `json:"profile"`
	Onboarding  Onboarding `json:"onboarding"`
	Rating      float64    `json:"rating"`
	RatingCount int        `json:"rating_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Bookable reports whether reservations may be made against this doctor.
func (d *Doctor) Bookable() bool {
	return d.Verified && d.Active
}

// Profile holds the fields a doctor fills in during onboarding.
type Profile struct {
	Specialty       string `json:"specialty"`
	ExperienceYears int    `json:"experience_years"`
	LicenseNumber   string `json:"license_number"`
	Bio             string `json:"bio"`
}

// Complete reports whether every required profile field is populated.
func (p Profile) Complete() bool {
	return strings.TrimSpace(p.Specialty) != "" &&
		p.ExperienceYears > 0 &&
		strings.TrimSpace(p.LicenseNumber) != "" &&
		strings.TrimSpace(p.Bio) != ""
}

// Onboarding is the trio of derived flags. No write path sets these
// directly; the flag engine recomputes them from source facts.
type Onboarding struct {
	ProfileCompleted    bool `json:"profile_completed"`
	ClinicsAdded        bool `json:"clinics_added"`
	AvailabilityCreated bool `json:"availability_created"`
}

// Review is a patient's rating of a doctor. Only verified reviews feed the
// aggregate; a review is verified when the patient completed an appointment
// with the doctor.
type Review struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the review's rating bounds.
func (r *Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// AggregateRating returns the mean rating and count over verified reviews.
// Unverified reviews never contribute.
func AggregateRating(reviews []Review) (float64, int) {
	var sum, count int
	for _, r := range reviews {
		if !r.Verified {
			continue
		}
		sum += r.Rating
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return float64(sum) / float64(count), count
}
