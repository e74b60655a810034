// Package planner expands reminder-offset expressions into concrete
// reminder records relative to an event's resolved start.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
)

// ErrInvalidOffset means a reminder-offset token could not be parsed.
var ErrInvalidOffset = errors.New("invalid reminder offset")

// Warning reports an offset that was dropped rather than scheduled.
// Dropped offsets never fail planning: an event starting in ten minutes
// with a one-hour reminder is still created, just without that reminder.
type Warning struct {
	Offset time.Duration
	FireAt time.Time
}

func (w Warning) String() string {
	return fmt.Sprintf("reminder %s before start would fire in the past (%s), dropped",
		w.Offset, w.FireAt.Format(time.RFC3339))
}

type Planner struct{}

func New() *Planner {
	return &Planner{}
}

// Plan turns raw offset tokens into reminders for the event, sorted by
// ascending fire instant with duplicate offsets collapsed. When tokens is
// empty the fallback offsets (per-user defaults) are used instead. A fire
// instant equal to now is due, not dropped; only instants strictly in the
// past are dropped, each with a warning.
func (p *Planner) Plan(tokens []string, fallback []time.Duration, event domain.Event, now time.Time) ([]domain.Reminder, []Warning, error) {
	var offsets []time.Duration
	if len(tokens) > 0 {
		for _, tok := range tokens {
			offset, err := ParseOffset(tok)
			if err != nil {
				return nil, nil, err
			}
			offsets = append(offsets, offset)
		}
	} else {
		offsets = append(offsets, fallback...)
	}

	now = now.UTC()
	seen := make(map[time.Duration]bool, len(offsets))

	var reminders []domain.Reminder
	var warnings []Warning

	for _, offset := range offsets {
		if seen[offset] {
			continue
		}
		seen[offset] = true

		fireAt := event.Span.Start.Add(-offset)
		if fireAt.Before(now) {
			warnings = append(warnings, Warning{Offset: offset, FireAt: fireAt})
			continue
		}

		reminders = append(reminders, domain.Reminder{
			ID:        uuid.New(),
			EventID:   event.ID,
			UserID:    event.UserID,
			Offset:    offset,
			FireAt:    fireAt,
			State:     domain.ReminderStatePending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	sort.Slice(reminders, func(i, j int) bool {
		return reminders[i].FireAt.Before(reminders[j].FireAt)
	})

	return reminders, warnings, nil
}

// ParseOffset parses a reminder-offset token. Accepted forms are Go
// duration syntax ("15m", "1h", "1h30m") and bare minutes ("30").
func ParseOffset(tok string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(tok); err == nil {
		if minutes <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidOffset, tok)
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	offset, err := time.ParseDuration(tok)
	if err != nil || offset <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, tok)
	}
	return offset, nil
}
