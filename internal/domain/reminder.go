package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReminderState string

const (
	// ReminderStatePending means the reminder is waiting for its fire instant.
	ReminderStatePending ReminderState = "pending"
	// ReminderStateDue means the scheduler emitted the reminder onto the bus
	// but delivery has not been confirmed yet.
	ReminderStateDue       ReminderState = "due"
	ReminderStateFired     ReminderState = "fired"
	ReminderStateCancelled ReminderState = "cancelled"
)

// IsTerminal reports whether the state admits no further transitions.
func (s ReminderState) IsTerminal() bool {
	return s == ReminderStateFired || s == ReminderStateCancelled
}

// Reminder is a scheduled notification belonging to exactly one event.
// FireAt = event start minus Offset.
type Reminder struct {
	ID      uuid.UUID
	EventID uuid.UUID
	UserID  int64

	Offset time.Duration
	FireAt time.Time
	State  ReminderState

	CreatedAt time.Time
	UpdatedAt time.Time
}
