package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventState string

const (
	EventStateDraft     EventState = "draft"
	EventStateScheduled EventState = "scheduled"
	EventStateActive    EventState = "active"
	EventStateCompleted EventState = "completed"
	EventStateCancelled EventState = "cancelled"
)

// IsTerminal reports whether no further state transitions are allowed.
// Cancelled is the only terminal state reachable by user action; completed
// events can still be cancelled for audit purposes.
func (s EventState) IsTerminal() bool {
	return s == EventStateCancelled
}

// Span is a resolved (start, end) instant pair. Both instants are UTC;
// Timezone records the IANA zone the expression was resolved against.
type Span struct {
	Start    time.Time
	End      time.Time
	Timezone string
}

func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// CalendarRef points at the upstream calendar entry created for an event.
type CalendarRef struct {
	ID  string
	URL string
}

// Event is the durable aggregate produced by normalization.
// Cancelled events are retained with a terminal state rather than deleted.
type Event struct {
	ID     uuid.UUID
	UserID int64

	Title string
	Span  Span
	State EventState

	Reminders []Reminder

	Advisory string // optional, filled asynchronously
	Calendar *CalendarRef

	CreatedAt time.Time
	UpdatedAt time.Time
}
