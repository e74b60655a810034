// Package channel carries due reminders from the scheduler to the
// notifier over an in-process buffered channel.
package channel

import (
	"context"
	"errors"
	"time"

	"napomni/internal/domain"
)

// ErrBufferFull means the notifier is not draining fast enough and the
// emit timed out. The reminder stays in state due; the reconciler picks
// it back up.
var ErrBufferFull = errors.New("due bus buffer full")

type Option func(*DueBus)

// WithEmitTimeout bounds how long Emit blocks on a full buffer. Zero
// means block until the context is done.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *DueBus) {
		b.emitTimeout = d
	}
}

type DueBus struct {
	ch          chan domain.ReminderDue
	emitTimeout time.Duration
}

func NewDueBus(buffer int, opts ...Option) *DueBus {
	b := &DueBus{
		ch: make(chan domain.ReminderDue, buffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *DueBus) Emit(ctx context.Context, due domain.ReminderDue) error {
	if b.emitTimeout <= 0 {
		select {
		case b.ch <- due:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- due:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBufferFull
	}
}

func (b *DueBus) Channel() <-chan domain.ReminderDue {
	return b.ch
}
