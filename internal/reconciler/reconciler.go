// Package reconciler rescues reminders stuck in state due.
//
// A reminder gets stuck when the scheduler marked it due but the bus
// emission never reached the notifier (buffer overflow, crash between the
// store write and the emit). The reconciler periodically scans for due
// reminders older than a threshold and re-emits them. The notifier's
// terminal-state guard absorbs any duplicate that was in fact delivered.
package reconciler

import (
	"context"
	"log"
	"time"

	"napomni/internal/domain"
	"napomni/internal/scheduler"
)

type Store interface {
	GetStuckDueReminders(ctx context.Context, olderThan time.Time, maxResults int) ([]scheduler.PendingReminder, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, due domain.ReminderDue) error
}

type Config struct {
	// Interval is how often the reconciler runs. Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which a due reminder is considered stuck.
	// Default: 10 minutes.
	Threshold time.Duration

	// BatchSize is the maximum number of stuck reminders per cycle.
	// Default: 100.
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 10 * time.Minute,
		BatchSize: 100,
	}
}

type Reconciler struct {
	config  Config
	store   Store
	emitter EventEmitter
	clock   func() time.Time
}

func New(config Config, store Store, emitter EventEmitter) *Reconciler {
	return &Reconciler{
		config:  config,
		store:   store,
		emitter: emitter,
		clock:   time.Now,
	}
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, threshold=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.BatchSize)

	// Run immediately on startup, then on ticker.
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	stuck, err := r.store.GetStuckDueReminders(ctx, threshold, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to fetch stuck reminders: %v", err)
		return
	}

	if len(stuck) == 0 {
		return
	}

	log.Printf("reconciler: found %d stuck reminders", len(stuck))

	emitted := 0
	failed := 0

	for _, pr := range stuck {
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, processed %d/%d reminders", emitted+failed, len(stuck))
			return
		}

		rem := pr.Reminder
		due := domain.ReminderDue{
			ReminderID:     rem.ID,
			EventID:        rem.EventID,
			UserID:         rem.UserID,
			Title:          pr.Title,
			EventStart:     pr.EventStart,
			Timezone:       pr.Timezone,
			Offset:         rem.Offset,
			FireAt:         rem.FireAt,
			EmittedAt:      now,
			IdempotencyKey: domain.DueIdempotencyKey(rem.ID, rem.FireAt),
		}

		if err := r.emitter.Emit(ctx, due); err != nil {
			// Buffer full or context cancelled. Will retry next cycle.
			log.Printf("reconciler: failed to re-emit reminder=%s event=%s: %v",
				rem.ID, rem.EventID, err)
			failed++
			continue
		}

		log.Printf("reconciler: re-emitted reminder=%s event=%s fire_at=%s (age=%s)",
			rem.ID, rem.EventID, rem.FireAt.Format(time.RFC3339),
			now.Sub(rem.UpdatedAt).Round(time.Second))
		emitted++
	}

	log.Printf("reconciler: cycle complete, re-emitted=%d, failed=%d", emitted, failed)
}
