package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/doctors"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/slots"
)

// Memory is an in-memory Store. A single mutex serializes transactions,
// which gives WithinTx stronger-than-snapshot isolation; rollback restores
// a map snapshot taken at transaction start.
type Memory struct {
	mu sync.Mutex

	doctors   map[uuid.UUID]doctors.Doctor
	slots     map[uuid.UUID]slots.Slot
	appts     map[uuid.UUID]appointments.Appointment
	links     map[uuid.UUID]map[uuid.UUID]bool
	reviews   map[uuid.UUID]doctors.Review
	outbox    []outboxRow
	delivered map[uuid.UUID]bool
}

type outboxRow struct {
	entry events.OutboxEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		doctors:   make(map[uuid.UUID]doctors.Doctor),
		slots:     make(map[uuid.UUID]slots.Slot),
		appts:     make(map[uuid.UUID]appointments.Appointment),
		links:     make(map[uuid.UUID]map[uuid.UUID]bool),
		reviews:   make(map[uuid.UUID]doctors.Review),
		delivered: make(map[uuid.UUID]bool),
	}
}

type memSnapshot struct {
	doctors   map[uuid.UUID]doctors.Doctor
	slots     map[uuid.UUID]slots.Slot
	appts     map[uuid.UUID]appointments.Appointment
	links     map[uuid.UUID]map[uuid.UUID]bool
	reviews   map[uuid.UUID]doctors.Review
	outbox    []outboxRow
	delivered map[uuid.UUID]bool
}

func (m *Memory) snapshot() memSnapshot {
	snap := memSnapshot{
		doctors:   make(map[uuid.UUID]doctors.Doctor, len(m.doctors)),
		slots:     make(map[uuid.UUID]slots.Slot, len(m.slots)),
		appts:     make(map[uuid.UUID]appointments.Appointment, len(m.appts)),
		links:     make(map[uuid.UUID]map[uuid.UUID]bool, len(m.links)),
		reviews:   make(map[uuid.UUID]doctors.Review, len(m.reviews)),
		outbox:    append([]outboxRow(nil), m.outbox...),
		delivered: make(map[uuid.UUID]bool, len(m.delivered)),
	}
	for k, v := range m.doctors {
		snap.doctors[k] = v
	}
	for k, v := range m.slots {
		snap.slots[k] = v
	}
	for k, v := range m.appts {
		snap.appts[k] = v
	}
	for k, set := range m.links {
		cp := make(map[uuid.UUID]bool, len(set))
		for c := range set {
			cp[c] = true
		}
		snap.links[k] = cp
	}
	for k, v := range m.reviews {
		snap.reviews[k] = v
	}
	for k, v := range m.delivered {
		snap.delivered[k] = v
	}
	return snap
}

func (m *Memory) restore(snap memSnapshot) {
	m.doctors = snap.doctors
	m.slots = snap.slots
	m.appts = snap.appts
	m.links = snap.links
	m.reviews = snap.reviews
	m.outbox = snap.outbox
	m.delivered = snap.delivered
}

// WithinTx runs fn under the store mutex. On error every mutation fn made
// is rolled back.
func (m *Memory) WithinTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&memTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Seed inserts entities directly, outside any transaction. Test and
// development helper.
func (m *Memory) Seed(docs []doctors.Doctor, sl []slots.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.doctors[d.ID] = d
	}
	for _, s := range sl {
		m.slots[s.ID] = s
	}
}

func (m *Memory) GetSlot(ctx context.Context, id uuid.UUID) (*slots.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSlot(id)
}

func (m *Memory) getSlot(id uuid.UUID) (*slots.Slot, error) {
	s, ok := m.slots[id]
	if !ok || s.Archived() {
		return nil, slots.ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (m *Memory) ListAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]slots.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []slots.Slot
	for _, s := range m.slots {
		if s.Archived() || s.DoctorID != doctorID {
			continue
		}
		if s.StartAt.Before(from) || !s.StartAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *Memory) GetAppointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (m *Memory) GetDoctor(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, doctors.ErrNotFound
	}
	cp := d
	return &cp, nil
}

func (m *Memory) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type stale struct {
		id      uuid.UUID
		created time.Time
	}
	var found []stale
	for id, a := range m.appts {
		if a.Status == appointments.StatusPending && a.CreatedAt.Before(cutoff) {
			found = append(found, stale{id, a.CreatedAt})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].created.Before(found[j].created) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ids := make([]uuid.UUID, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.id)
	}
	return ids, nil
}

func (m *Memory) FetchPendingEvents(ctx context.Context, limit int32) ([]events.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []events.OutboxEntry
	for _, row := range m.outbox {
		if m.delivered[row.entry.ID] {
			continue
		}
		out = append(out, row.entry)
		if int32(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkEventDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delivered[id] {
		return false, nil
	}
	m.delivered[id] = true
	return true, nil
}

// memTx mutates the store directly; the enclosing WithinTx holds the mutex
// and restores a snapshot on error.
type memTx struct {
	m *Memory
}

func (t *memTx) SlotForUpdate(ctx context.Context, id uuid.UUID) (*slots.Slot, error) {
	// Locks the row even when archived so transitions on existing
	// appointments can still release their seats.
	s, ok := t.m.slots[id]
	if !ok {
		return nil, slots.ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (t *memTx) CountHolding(ctx context.Context, slotID uuid.UUID) (int, error) {
	count := 0
	for _, a := range t.m.appts {
		if a.SlotID == slotID && a.Status.HoldsCapacity() {
			count++
		}
	}
	return count, nil
}

func (t *memTx) SetSlotFill(ctx context.Context, id uuid.UUID, bookedCount int, isAvailable bool) error {
	s, ok := t.m.slots[id]
	if !ok {
		return slots.ErrNotFound
	}
	s.BookedCount = bookedCount
	s.IsAvailable = isAvailable
	s.UpdatedAt = time.Now().UTC()
	t.m.slots[id] = s
	return nil
}

func (t *memTx) GetDoctor(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	d, ok := t.m.doctors[id]
	if !ok {
		return nil, doctors.ErrNotFound
	}
	cp := d
	return &cp, nil
}

func (t *memTx) CountClinicLinks(ctx context.Context, doctorID uuid.UUID) (int, error) {
	return len(t.m.links[doctorID]), nil
}

func (t *memTx) CountSlots(ctx context.Context, doctorID uuid.UUID) (int, error) {
	count := 0
	for _, s := range t.m.slots {
		if s.DoctorID == doctorID && !s.Archived() {
			count++
		}
	}
	return count, nil
}

func (t *memTx) ListVerifiedReviews(ctx context.Context, doctorID uuid.UUID) ([]doctors.Review, error) {
	var out []doctors.Review
	for _, r := range t.m.reviews {
		if r.DoctorID == doctorID && r.Verified {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) SetOnboarding(ctx context.Context, doctorID uuid.UUID, flags doctors.Onboarding) error {
	d, ok := t.m.doctors[doctorID]
	if !ok {
		return doctors.ErrNotFound
	}
	d.Onboarding = flags
	d.UpdatedAt = time.Now().UTC()
	t.m.doctors[doctorID] = d
	return nil
}

func (t *memTx) SetRating(ctx context.Context, doctorID uuid.UUID, rating float64, count int) error {
	d, ok := t.m.doctors[doctorID]
	if !ok {
		return doctors.ErrNotFound
	}
	d.Rating = rating
	d.RatingCount = count
	d.UpdatedAt = time.Now().UTC()
	t.m.doctors[doctorID] = d
	return nil
}

func (t *memTx) AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	a, ok := t.m.appts[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt *appointments.Appointment) error {
	if _, exists := t.m.appts[appt.ID]; exists {
		return fmt.Errorf("storage: duplicate appointment id %s", appt.ID)
	}
	t.m.appts[appt.ID] = *appt
	return nil
}

func (t *memTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status appointments.Status, at time.Time) error {
	a, ok := t.m.appts[id]
	if !ok {
		return appointments.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	t.m.appts[id] = a
	return nil
}

func (t *memTx) PatientOverlapExists(ctx context.Context, patientID uuid.UUID, start, end time.Time) (bool, error) {
	for _, a := range t.m.appts {
		if a.PatientID != patientID || !a.Status.HoldsCapacity() {
			continue
		}
		s, ok := t.m.slots[a.SlotID]
		if !ok {
			continue
		}
		if s.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) HasCompletedAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	for _, a := range t.m.appts {
		if a.PatientID == patientID && a.DoctorID == doctorID && a.Status == appointments.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertDoctor(ctx context.Context, doc *doctors.Doctor) error {
	if _, exists := t.m.doctors[doc.ID]; exists {
		return fmt.Errorf("storage: duplicate doctor id %s", doc.ID)
	}
	t.m.doctors[doc.ID] = *doc
	return nil
}

func (t *memTx) UpdateDoctorProfile(ctx context.Context, doctorID uuid.UUID, profile doctors.Profile) error {
	d, ok := t.m.doctors[doctorID]
	if !ok {
		return doctors.ErrNotFound
	}
	d.Profile = profile
	d.UpdatedAt = time.Now().UTC()
	t.m.doctors[doctorID] = d
	return nil
}

func (t *memTx) InsertClinicLink(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	if _, ok := t.m.doctors[doctorID]; !ok {
		return doctors.ErrNotFound
	}
	set, ok := t.m.links[doctorID]
	if !ok {
		set = make(map[uuid.UUID]bool)
		t.m.links[doctorID] = set
	}
	set[clinicID] = true
	return nil
}

func (t *memTx) DeleteClinicLink(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	delete(t.m.links[doctorID], clinicID)
	return nil
}

func (t *memTx) InsertSlot(ctx context.Context, slot *slots.Slot) error {
	if _, exists := t.m.slots[slot.ID]; exists {
		return fmt.Errorf("storage: duplicate slot id %s", slot.ID)
	}
	t.m.slots[slot.ID] = *slot
	return nil
}

func (t *memTx) ArchiveSlot(ctx context.Context, id uuid.UUID) error {
	s, ok := t.m.slots[id]
	if !ok || s.Archived() {
		return slots.ErrNotFound
	}
	now := time.Now().UTC()
	s.ArchivedAt = &now
	s.UpdatedAt = now
	t.m.slots[id] = s
	return nil
}

func (t *memTx) InsertReview(ctx context.Context, review *doctors.Review) error {
	if _, exists := t.m.reviews[review.ID]; exists {
		return fmt.Errorf("storage: duplicate review id %s", review.ID)
	}
	t.m.reviews[review.ID] = *review
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, event events.AppointmentEventV1) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("storage: marshal event: %w", err)
	}
	t.m.outbox = append(t.m.outbox, outboxRow{entry: events.OutboxEntry{
		ID:        uuid.MustParse(event.EventID),
		Type:      event.EventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}})
	return nil
}
