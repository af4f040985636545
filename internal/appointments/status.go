package appointments

// Status is an appointment lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// transitions enumerates every permitted status change. Anything absent
// here is rejected with ErrInvalidTransition.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusExpired:   true, // expiry sweeper only
	},
	StatusScheduled: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusInProgress: true,
		StatusCancelled:  true,
	},
	StatusInProgress: {
		StatusCompleted: true,
	},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// ValidateTransition returns ErrInvalidTransition when the change is not
// in the transition table.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// HoldsCapacity reports whether an appointment in this status occupies a
// seat on its slot. A pending appointment holds its seat until it is
// confirmed, cancelled or expired.
func (s Status) HoldsCapacity() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
