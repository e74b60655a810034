// Package advisory produces short preparatory notes for events, grounded
// in the user's knowledge corpus.
//
// Augmentation is strictly best-effort: it runs after the event is already
// stored and scheduled, under its own deadline, and no failure in here can
// affect the event or its reminders.
package advisory

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
)

// MaxNoteLength bounds the stored advisory text in runes.
const MaxNoteLength = 500

type Retriever interface {
	Retrieve(ctx context.Context, userID int64, query string, limit int) ([]domain.Passage, error)
}

type Generator interface {
	Generate(ctx context.Context, event domain.Event, passages []domain.Passage) (string, error)
}

type Store interface {
	UpdateEventAdvisory(ctx context.Context, eventID uuid.UUID, advisory string) error
}

// MetricsSink records advisory metrics. Methods must be non-blocking.
type MetricsSink interface {
	AdvisoryCompleted(outcome string, duration time.Duration)
}

type Config struct {
	// Timeout bounds one augmentation run end to end. Default: 15s.
	Timeout time.Duration
	// PassageLimit is how many corpus passages to retrieve. Default: 5.
	PassageLimit int
}

type Augmenter struct {
	config    Config
	retriever Retriever
	generator Generator
	store     Store
	metrics   MetricsSink // optional, nil = disabled
	clock     func() time.Time
}

func New(config Config, retriever Retriever, generator Generator, store Store) *Augmenter {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.PassageLimit <= 0 {
		config.PassageLimit = 5
	}
	return &Augmenter{
		config:    config,
		retriever: retriever,
		generator: generator,
		store:     store,
		metrics:   nil,
		clock:     time.Now,
	}
}

func (a *Augmenter) WithMetrics(sink MetricsSink) *Augmenter {
	a.metrics = sink
	return a
}

// Augment generates and attaches an advisory note for the event. Errors
// are logged, counted and swallowed; the caller fires this and forgets.
func (a *Augmenter) Augment(ctx context.Context, event domain.Event) {
	start := a.clock()
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	outcome := a.run(ctx, event)
	if a.metrics != nil {
		a.metrics.AdvisoryCompleted(outcome, a.clock().Sub(start))
	}
}

func (a *Augmenter) run(ctx context.Context, event domain.Event) string {
	passages, err := a.retriever.Retrieve(ctx, event.UserID, event.Title, a.config.PassageLimit)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("advisory: event=%s retrieval timed out", event.ID)
			return "timeout"
		}
		// Generation can still proceed ungrounded.
		log.Printf("advisory: event=%s retrieval failed, generating without context: %v", event.ID, err)
		passages = nil
	}

	note, err := a.generator.Generate(ctx, event, passages)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("advisory: event=%s generation timed out", event.ID)
			return "timeout"
		}
		log.Printf("advisory: event=%s generation failed: %v", event.ID, err)
		return "error"
	}

	note = clampNote(note)
	if note == "" {
		log.Printf("advisory: event=%s model produced no note", event.ID)
		return "skipped"
	}

	if err := a.store.UpdateEventAdvisory(ctx, event.ID, note); err != nil {
		log.Printf("advisory: event=%s failed to attach note: %v", event.ID, err)
		return "error"
	}

	log.Printf("advisory: event=%s note attached (%d chars, %d passages)",
		event.ID, len([]rune(note)), len(passages))
	return "attached"
}

func clampNote(note string) string {
	runes := []rune(note)
	if len(runes) <= MaxNoteLength {
		return note
	}
	return string(runes[:MaxNoteLength])
}
