package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubSource struct {
	pending   []OutboxEntry
	delivered map[uuid.UUID]bool
	fetchErr  error
}

func newStubSource(entries ...OutboxEntry) *stubSource {
	return &stubSource{pending: entries, delivered: make(map[uuid.UUID]bool)}
}

func (s *stubSource) FetchPendingEvents(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []OutboxEntry
	for _, e := range s.pending {
		if !s.delivered[e.ID] {
			out = append(out, e)
		}
		if int32(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubSource) MarkEventDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.delivered[id] {
		return false, nil
	}
	s.delivered[id] = true
	return true, nil
}

type recordingHandler struct {
	seen []OutboxEntry
	fail map[uuid.UUID]bool
}

func (h *recordingHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	if h.fail[entry.ID] {
		return errors.New("downstream unavailable")
	}
	h.seen = append(h.seen, entry)
	return nil
}

func entry(t Type) OutboxEntry {
	return OutboxEntry{ID: uuid.New(), Type: t, Payload: json.RawMessage(`{}`), CreatedAt: time.Now().UTC()}
}

func TestDrainDeliversAndMarks(t *testing.T) {
	e1, e2 := entry(TypeCreated), entry(TypeCancelled)
	source := newStubSource(e1, e2)
	handler := &recordingHandler{}

	NewDeliverer(source, handler, nil).Drain(context.Background())

	if len(handler.seen) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(handler.seen))
	}
	if !source.delivered[e1.ID] || !source.delivered[e2.ID] {
		t.Fatal("expected both entries marked delivered")
	}
}

func TestDrainRetriesFailedDeliveryNextPass(t *testing.T) {
	e1 := entry(TypeExpired)
	source := newStubSource(e1)
	handler := &recordingHandler{fail: map[uuid.UUID]bool{e1.ID: true}}
	d := NewDeliverer(source, handler, nil)

	d.Drain(context.Background())
	if source.delivered[e1.ID] {
		t.Fatal("failed delivery must not be marked delivered")
	}

	// Downstream recovers; the same entry is delivered on the next pass.
	handler.fail = nil
	d.Drain(context.Background())
	if !source.delivered[e1.ID] {
		t.Fatal("expected delivery after downstream recovery")
	}
	if len(handler.seen) != 1 {
		t.Fatalf("expected exactly one successful delivery, got %d", len(handler.seen))
	}
}

func TestDrainToleratesFetchFailure(t *testing.T) {
	source := newStubSource()
	source.fetchErr = errors.New("db down")

	// Must not panic; failure is logged and left for the next pass.
	NewDeliverer(source, &recordingHandler{}, nil).Drain(context.Background())
}

func TestNewAppointmentEventFields(t *testing.T) {
	apptID, docID, patID, slotID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))

	ev := NewAppointmentEvent(TypeConfirmed, apptID, docID, patID, slotID, at)

	if ev.EventType != TypeConfirmed {
		t.Errorf("unexpected type %s", ev.EventType)
	}
	if ev.AppointmentID != apptID.String() || ev.DoctorID != docID.String() ||
		ev.PatientID != patID.String() || ev.SlotID != slotID.String() {
		t.Error("entity references not carried through")
	}
	if ev.OccurredAt.Location() != time.UTC {
		t.Error("occurred_at must be UTC")
	}
	if ev.EventID == "" {
		t.Error("event id must be assigned")
	}
}
