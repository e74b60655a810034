// Package lifecycle advances event states over time: scheduled events
// whose start has passed become active, active events whose end has
// passed become completed.
package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

type Store interface {
	SweepEventStates(ctx context.Context, now time.Time) (activated, completed int64, err error)
}

type Config struct {
	// Schedule is a standard 5-field cron expression.
	// Default: every minute.
	Schedule string
	// SweepTimeout bounds one sweep. Default: 30s.
	SweepTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:     "* * * * *",
		SweepTimeout: 30 * time.Second,
	}
}

type Sweeper struct {
	config Config
	store  Store
	clock  func() time.Time
}

func New(config Config, store Store) *Sweeper {
	if config.Schedule == "" {
		config.Schedule = "* * * * *"
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = 30 * time.Second
	}
	return &Sweeper{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// Run sweeps once immediately, then on the cron schedule until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.config.Schedule, func() {
		s.sweep(ctx)
	})
	if err != nil {
		return err
	}

	log.Printf("lifecycle: started (schedule=%q)", s.config.Schedule)
	s.sweep(ctx)

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	log.Println("lifecycle: stopped")
	return ctx.Err()
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	now := s.clock().UTC()
	activated, completed, err := s.store.SweepEventStates(sweepCtx, now)
	if err != nil {
		log.Printf("lifecycle: sweep failed: %v", err)
		return
	}
	if activated > 0 || completed > 0 {
		log.Printf("lifecycle: sweep done, activated=%d completed=%d", activated, completed)
	}
}
