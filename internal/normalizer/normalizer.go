// Package normalizer validates a resolved span and produces the canonical
// event record. It is the only place event identifiers are assigned.
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
)

var (
	ErrMissingTitle      = errors.New("event title is missing")
	ErrEventInPast       = errors.New("event starts in the past")
	ErrEventTooFarFuture = errors.New("event starts too far in the future")
	ErrDurationTooLong   = errors.New("event duration is implausible")
)

type Config struct {
	// PastHorizon is how far behind now an event start may lie before it is
	// rejected (small slack absorbs resolution latency).
	PastHorizon time.Duration
	// FutureHorizon caps how far ahead an event start may lie.
	FutureHorizon time.Duration
	// MaxDuration caps the span length, catching misread ranges that
	// accidentally span days.
	MaxDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		PastHorizon:   5 * time.Minute,
		FutureHorizon: 366 * 24 * time.Hour,
		MaxDuration:   24 * time.Hour,
	}
}

type Normalizer struct {
	config Config
}

func New(config Config) *Normalizer {
	def := DefaultConfig()
	if config.PastHorizon <= 0 {
		config.PastHorizon = def.PastHorizon
	}
	if config.FutureHorizon <= 0 {
		config.FutureHorizon = def.FutureHorizon
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = def.MaxDuration
	}
	return &Normalizer{config: config}
}

// Input carries everything normalization needs; now is passed explicitly so
// validation is deterministic.
type Input struct {
	UserID int64
	Title  string
	Span   domain.Span
	Now    time.Time

	// AllowPast skips the past-horizon check, for deliberately backdated
	// events (user edits, imports).
	AllowPast bool
}

// Normalize validates the input and returns an event in state scheduled.
func (n *Normalizer) Normalize(in Input) (domain.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Event{}, ErrMissingTitle
	}

	now := in.Now.UTC()

	if !in.AllowPast && in.Span.Start.Before(now.Add(-n.config.PastHorizon)) {
		return domain.Event{}, fmt.Errorf("%w: start %s is before %s",
			ErrEventInPast, in.Span.Start.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if in.Span.Start.After(now.Add(n.config.FutureHorizon)) {
		return domain.Event{}, fmt.Errorf("%w: start %s exceeds the %s horizon",
			ErrEventTooFarFuture, in.Span.Start.Format(time.RFC3339), n.config.FutureHorizon)
	}

	duration := in.Span.Duration()
	if duration <= 0 || duration > n.config.MaxDuration {
		return domain.Event{}, fmt.Errorf("%w: %s", ErrDurationTooLong, duration)
	}

	return domain.Event{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Title:     title,
		Span:      in.Span,
		State:     domain.EventStateScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
