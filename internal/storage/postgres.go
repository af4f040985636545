package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/slots"
)

// pgLockNotAvailable is raised when SET LOCAL lock_timeout trips on a
// contended slot row.
const pgLockNotAvailable = "55P03"

// holdingStatuses is the SQL list of capacity-holding appointment statuses.
const holdingStatuses = `('pending','scheduled','confirmed')`

// PgxPool is the slice of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production Store. Per-slot serialization comes from
// SELECT ... FOR UPDATE on the slot row; a lock_timeout bounds the wait and
// surfaces slots.ErrBusy instead of queueing indefinitely.
type Postgres struct {
	pool        PgxPool
	lockTimeout time.Duration
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool PgxPool, lockTimeout time.Duration) *Postgres {
	if pool == nil {
		panic("storage: pgx pool required")
	}
	return &Postgres{pool: pool, lockTimeout: lockTimeout}
}

// WithinTx opens a transaction, applies the lock timeout, and commits only
// when fn returns nil.
func (p *Postgres) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: set lock timeout: %w", err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

const slotColumns = `id, doctor_id, clinic_id, day, start_at, end_at, capacity, booked_count, is_available, archived_at, created_at, updated_at`

func scanSlot(row pgx.Row) (*slots.Slot, error) {
	var s slots.Slot
	err := row.Scan(&s.ID, &s.DoctorID, &s.ClinicID, &s.Day, &s.StartAt, &s.EndAt,
		&s.Capacity, &s.BookedCount, &s.IsAvailable, &s.ArchivedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, slots.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, slots.ErrBusy
		}
		return nil, fmt.Errorf("storage: scan slot: %w", err)
	}
	return &s, nil
}

func (p *Postgres) GetSlot(ctx context.Context, id uuid.UUID) (*slots.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE id = $1 AND archived_at IS NULL
	`
	return scanSlot(p.pool.QueryRow(ctx, query, id))
}

func (p *Postgres) ListAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]slots.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE doctor_id = $1 AND start_at >= $2 AND start_at < $3 AND archived_at IS NULL
		ORDER BY start_at
	`
	rows, err := p.pool.Query(ctx, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: list availability: %w", err)
	}
	defer rows.Close()

	var out []slots.Slot
	for rows.Next() {
		var s slots.Slot
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.ClinicID, &s.Day, &s.StartAt, &s.EndAt,
			&s.Capacity, &s.BookedCount, &s.IsAvailable, &s.ArchivedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan availability: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const apptColumns = `id, slot_id, doctor_id, patient_id, status, appointment_type, notes, fee_cents, created_at, updated_at`

func scanAppointment(row pgx.Row) (*appointments.Appointment, error) {
	var a appointments.Appointment
	err := row.Scan(&a.ID, &a.SlotID, &a.DoctorID, &a.PatientID, &a.Status, &a.Type,
		&a.Notes, &a.FeeCents, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appointments.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, appointments.ErrBusy
		}
		return nil, fmt.Errorf("storage: scan appointment: %w", err)
	}
	return &a, nil
}

func (p *Postgres) GetAppointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1`
	return scanAppointment(p.pool.QueryRow(ctx, query, id))
}

const doctorColumns = `id, name, verified, active, fee_cents, specialty, experience_years, license_number, bio,
		profile_completed, clinics_added, availability_created, rating, rating_count, created_at, updated_at`

func scanDoctor(row pgx.Row) (*doctors.Doctor, error) {
	var d doctors.Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Verified, &d.Active, &d.FeeCents,
		&d.Profile.Specialty, &d.Profile.ExperienceYears, &d.Profile.LicenseNumber, &d.Profile.Bio,
		&d.Onboarding.ProfileCompleted, &d.Onboarding.ClinicsAdded, &d.Onboarding.AvailabilityCreated,
		&d.Rating, &d.RatingCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, doctors.ErrNotFound
		}
		return nil, fmt.Errorf("storage: scan doctor: %w", err)
	}
	return &d, nil
}

func (p *Postgres) GetDoctor(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`
	return scanDoctor(p.pool.QueryRow(ctx, query, id))
}

func (p *Postgres) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM appointments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list stale pending: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan stale pending: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) FetchPendingEvents(ctx context.Context, limit int32) ([]events.OutboxEntry, error) {
	query := `
		SELECT id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch pending events: %w", err)
	}
	defer rows.Close()

	var entries []events.OutboxEntry
	for rows.Next() {
		var entry events.OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (p *Postgres) MarkEventDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := p.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("storage: mark event delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// pgTx adapts an open pgx transaction to the Tx interface.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SlotForUpdate(ctx context.Context, id uuid.UUID) (*slots.Slot, error) {
	// No archived_at filter: appointments on an archived slot still need
	// its row locked when they leave the holding set and free the seat.
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE id = $1
		FOR UPDATE
	`
	return scanSlot(t.tx.QueryRow(ctx, query, id))
}

func (t *pgTx) CountHolding(ctx context.Context, slotID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM appointments WHERE slot_id = $1 AND status IN ` + holdingStatuses
	var count int
	if err := t.tx.QueryRow(ctx, query, slotID).Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: count holding: %w", err)
	}
	return count, nil
}

func (t *pgTx) SetSlotFill(ctx context.Context, id uuid.UUID, bookedCount int, isAvailable bool) error {
	query := `
		UPDATE availability_slots
		SET booked_count = $2, is_available = $3, updated_at = now()
		WHERE id = $1
	`
	ct, err := t.tx.Exec(ctx, query, id, bookedCount, isAvailable)
	if err != nil {
		return fmt.Errorf("storage: set slot fill: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return slots.ErrNotFound
	}
	return nil
}

func (t *pgTx) GetDoctor(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`
	return scanDoctor(t.tx.QueryRow(ctx, query, id))
}

func (t *pgTx) CountClinicLinks(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var count int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM doctor_clinics WHERE doctor_id = $1`, doctorID).Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: count clinic links: %w", err)
	}
	return count, nil
}

func (t *pgTx) CountSlots(ctx context.Context, doctorID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM availability_slots WHERE doctor_id = $1 AND archived_at IS NULL`
	var count int
	if err := t.tx.QueryRow(ctx, query, doctorID).Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: count slots: %w", err)
	}
	return count, nil
}

func (t *pgTx) ListVerifiedReviews(ctx context.Context, doctorID uuid.UUID) ([]doctors.Review, error) {
	query := `
		SELECT id, doctor_id, patient_id, rating, comment, verified, created_at
		FROM reviews
		WHERE doctor_id = $1 AND verified = true
	`
	rows, err := t.tx.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("storage: list verified reviews: %w", err)
	}
	defer rows.Close()

	var out []doctors.Review
	for rows.Next() {
		var r doctors.Review
		if err := rows.Scan(&r.ID, &r.DoctorID, &r.PatientID, &r.Rating, &r.Comment, &r.Verified, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) SetOnboarding(ctx context.Context, doctorID uuid.UUID, flags doctors.Onboarding) error {
	query := `
		UPDATE doctors
		SET profile_completed = $2, clinics_added = $3, availability_created = $4, updated_at = now()
		WHERE id = $1
	`
	ct, err := t.tx.Exec(ctx, query, doctorID, flags.ProfileCompleted, flags.ClinicsAdded, flags.AvailabilityCreated)
	if err != nil {
		return fmt.Errorf("storage: set onboarding: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return doctors.ErrNotFound
	}
	return nil
}

func (t *pgTx) SetRating(ctx context.Context, doctorID uuid.UUID, rating float64, count int) error {
	query := `UPDATE doctors SET rating = $2, rating_count = $3, updated_at = now() WHERE id = $1`
	ct, err := t.tx.Exec(ctx, query, doctorID, rating, count)
	if err != nil {
		return fmt.Errorf("storage: set rating: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return doctors.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
	return scanAppointment(t.tx.QueryRow(ctx, query, id))
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *appointments.Appointment) error {
	query := `
		INSERT INTO appointments (id, slot_id, doctor_id, patient_id, status, appointment_type, notes, fee_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := t.tx.Exec(ctx, query, a.ID, a.SlotID, a.DoctorID, a.PatientID,
		a.Status, a.Type, a.Notes, a.FeeCents, a.CreatedAt, a.UpdatedAt); err != nil {
		return fmt.Errorf("storage: insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status appointments.Status, at time.Time) error {
	query := `UPDATE appointments SET status = $2, updated_at = $3 WHERE id = $1`
	ct, err := t.tx.Exec(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("storage: set appointment status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return appointments.ErrNotFound
	}
	return nil
}

func (t *pgTx) PatientOverlapExists(ctx context.Context, patientID uuid.UUID, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM appointments a
			JOIN availability_slots s ON s.id = a.slot_id
			WHERE a.patient_id = $1
			  AND a.status IN ` + holdingStatuses + `
			  AND s.start_at < $3
			  AND $2 < s.end_at
		)
	`
	var exists bool
	if err := t.tx.QueryRow(ctx, query, patientID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("storage: patient overlap: %w", err)
	}
	return exists, nil
}

func (t *pgTx) HasCompletedAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND doctor_id = $2 AND status = 'completed'
		)
	`
	var exists bool
	if err := t.tx.QueryRow(ctx, query, patientID, doctorID).Scan(&exists); err != nil {
		return false, fmt.Errorf("storage: completed appointment lookup: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertDoctor(ctx context.Context, d *doctors.Doctor) error {
	query := `
		INSERT INTO doctors (id, name, verified, active, fee_cents, specialty, experience_years, license_number, bio,
			profile_completed, clinics_added, availability_created, rating, rating_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := t.tx.Exec(ctx, query, d.ID, d.Name, d.Verified, d.Active, d.FeeCents,
		d.Profile.Specialty, d.Profile.ExperienceYears, d.Profile.LicenseNumber, d.Profile.Bio,
		d.Onboarding.ProfileCompleted, d.Onboarding.ClinicsAdded, d.Onboarding.AvailabilityCreated,
		d.Rating, d.RatingCount, d.CreatedAt, d.UpdatedAt); err != nil {
		return fmt.Errorf("storage: insert doctor: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateDoctorProfile(ctx context.Context, doctorID uuid.UUID, profile doctors.Profile) error {
	query := `
		UPDATE doctors
		SET specialty = $2, experience_years = $3, license_number = $4, bio = $5, updated_at = now()
		WHERE id = $1
	`
	ct, err := t.tx.Exec(ctx, query, doctorID, profile.Specialty, profile.ExperienceYears, profile.LicenseNumber, profile.Bio)
	if err != nil {
		return fmt.Errorf("storage: update doctor profile: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return doctors.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertClinicLink(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	query := `
		INSERT INTO doctor_clinics (doctor_id, clinic_id)
		VALUES ($1, $2)
		ON CONFLICT (doctor_id, clinic_id) DO NOTHING
	`
	if _, err := t.tx.Exec(ctx, query, doctorID, clinicID); err != nil {
		return fmt.Errorf("storage: insert clinic link: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteClinicLink(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	query := `DELETE FROM doctor_clinics WHERE doctor_id = $1 AND clinic_id = $2`
	if _, err := t.tx.Exec(ctx, query, doctorID, clinicID); err != nil {
		return fmt.Errorf("storage: delete clinic link: %w", err)
	}
	return nil
}

func (t *pgTx) InsertSlot(ctx context.Context, s *slots.Slot) error {
	query := `
		INSERT INTO availability_slots (id, doctor_id, clinic_id, day, start_at, end_at, capacity, booked_count, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := t.tx.Exec(ctx, query, s.ID, s.DoctorID, s.ClinicID, s.Day, s.StartAt, s.EndAt,
		s.Capacity, s.BookedCount, s.IsAvailable, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("storage: insert slot: %w", err)
	}
	return nil
}

func (t *pgTx) ArchiveSlot(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE availability_slots SET archived_at = now() WHERE id = $1 AND archived_at IS NULL`
	ct, err := t.tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("storage: archive slot: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return slots.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertReview(ctx context.Context, r *doctors.Review) error {
	query := `
		INSERT INTO reviews (id, doctor_id, patient_id, rating, comment, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := t.tx.Exec(ctx, query, r.ID, r.DoctorID, r.PatientID, r.Rating, r.Comment, r.Verified, r.CreatedAt); err != nil {
		return fmt.Errorf("storage: insert review: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, event events.AppointmentEventV1) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("storage: marshal event: %w", err)
	}
	query := `INSERT INTO outbox (id, type, payload) VALUES ($1, $2, $3)`
	if _, err := t.tx.Exec(ctx, query, uuid.MustParse(event.EventID), event.EventType, payload); err != nil {
		return fmt.Errorf("storage: append event: %w", err)
	}
	return nil
}
