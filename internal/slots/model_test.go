package slots

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	base := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)

	slot := Slot{StartAt: base, EndAt: base.Add(30 * time.Minute), Capacity: 1}
	if err := slot.Validate(); err != nil {
		t.Fatalf("valid slot rejected: %v", err)
	}

	slot = Slot{StartAt: base, EndAt: base, Capacity: 1}
	if err := slot.Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}

	slot = Slot{StartAt: base, EndAt: base.Add(time.Hour), Capacity: 0}
	if err := slot.Validate(); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	slot := Slot{StartAt: start, EndAt: start.Add(time.Hour)}

	if !slot.Overlaps(start.Add(30*time.Minute), start.Add(90*time.Minute)) {
		t.Error("partial overlap should intersect")
	}
	if !slot.Overlaps(start.Add(-time.Hour), start.Add(2*time.Hour)) {
		t.Error("containing window should intersect")
	}
	// Back-to-back windows share only the boundary instant.
	if slot.Overlaps(start.Add(time.Hour), start.Add(2*time.Hour)) {
		t.Error("adjacent window must not intersect")
	}
	if slot.Overlaps(start.Add(-time.Hour), start) {
		t.Error("preceding adjacent window must not intersect")
	}
}

func TestRemaining(t *testing.T) {
	slot := Slot{Capacity: 3, BookedCount: 1}
	if slot.Remaining() != 2 {
		t.Errorf("expected 2 remaining, got %d", slot.Remaining())
	}
	slot.BookedCount = 5
	if slot.Remaining() != 0 {
		t.Errorf("over-filled slot should report 0 remaining, got %d", slot.Remaining())
	}
}

func TestInPast(t *testing.T) {
	now := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	slot := Slot{StartAt: now.Add(-time.Minute)}
	if !slot.InPast(now) {
		t.Error("started slot should be in the past")
	}
	slot.StartAt = now.Add(time.Minute)
	if slot.InPast(now) {
		t.Error("future slot should not be in the past")
	}
}
