// Package scheduler owns the pending-reminder set and decides when each
// reminder becomes due.
//
// A single worker goroutine is the sole mutator of scheduler state. All
// other components submit or cancel through channels; the worker wakes when
// the next fire instant arrives, when an earlier instant is inserted, or
// when a cancellation changes the wake target. Due reminders are marked in
// the durable store and emitted onto the event bus; delivery (with retries)
// is the notifier's job.
//
// On start the worker reloads every unfired reminder from the store,
// including reminders whose fire instant has already passed: late is
// strictly better than lost.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
)

type Store interface {
	// ListUnfiredReminders returns reminders in state pending or due with
	// the owning event's metadata, ordered by fire instant.
	ListUnfiredReminders(ctx context.Context) ([]PendingReminder, error)
	// MarkReminderDue transitions a reminder to due. Implementations MUST
	// reject transitions out of terminal states with
	// domain.ErrStateTransitionDenied; that guard is what makes duplicate
	// pops and post-cancellation pops safe.
	MarkReminderDue(ctx context.Context, id uuid.UUID, at time.Time) error
}

type EventEmitter interface {
	Emit(ctx context.Context, due domain.ReminderDue) error
}

// MetricsSink records scheduler metrics. Methods must be non-blocking.
type MetricsSink interface {
	SchedulerWake(emitted int)
	PendingSetSize(n int)
}

// PendingReminder joins a reminder with the event fields carried on the bus.
type PendingReminder struct {
	Reminder   domain.Reminder
	Title      string
	EventStart time.Time
	Timezone   string
}

type Config struct {
	// MaxWake caps how long the worker sleeps without re-reading the
	// clock, bounding the damage of wall-clock adjustments.
	MaxWake time.Duration
	// RetryInterval delays re-attempting a reminder whose store update
	// failed transiently.
	RetryInterval time.Duration
}

type Scheduler struct {
	config  Config
	store   Store
	emitter EventEmitter
	metrics MetricsSink
	clock   func() time.Time

	submitCh chan []PendingReminder
	cancelCh chan uuid.UUID

	// Owned exclusively by the Run goroutine.
	pending   entryHeap
	seq       uint64
	perEvent  map[uuid.UUID]int
	cancelled map[uuid.UUID]bool

	size atomic.Int64
}

func New(config Config, store Store, emitter EventEmitter) *Scheduler {
	if config.MaxWake <= 0 {
		config.MaxWake = time.Minute
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 15 * time.Second
	}
	return &Scheduler{
		config:    config,
		store:     store,
		emitter:   emitter,
		clock:     time.Now,
		submitCh:  make(chan []PendingReminder),
		cancelCh:  make(chan uuid.UUID),
		perEvent:  make(map[uuid.UUID]int),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// Submit hands new reminders to the worker. Safe for concurrent use.
func (s *Scheduler) Submit(ctx context.Context, reminders []PendingReminder) error {
	if len(reminders) == 0 {
		return nil
	}
	select {
	case s.submitCh <- reminders:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelEvent removes all of an event's reminders from the wake
// computation before the next wake. A reminder whose firing is already in
// flight completes once; the store's terminal-state guard prevents a
// second delivery.
func (s *Scheduler) CancelEvent(ctx context.Context, eventID uuid.UUID) error {
	select {
	case s.cancelCh <- eventID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingCount reports the number of reminders currently held. Safe for
// concurrent use; the worker remains the only mutator.
func (s *Scheduler) PendingCount() int {
	return int(s.size.Load())
}

// Run reloads unfired reminders and then serves the wake loop until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return fmt.Errorf("reload pending reminders: %w", err)
	}

	log.Printf("scheduler: started, pending=%d max_wake=%s", s.pending.Len(), s.config.MaxWake)

	timer := time.NewTimer(s.nextWake())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()

		case reminders := <-s.submitCh:
			for _, pr := range reminders {
				s.push(pr)
			}

		case eventID := <-s.cancelCh:
			if s.perEvent[eventID] > 0 {
				s.cancelled[eventID] = true
			}

		case <-timer.C:
			s.fireDue(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.nextWake())
		s.publishSize()
	}
}

func (s *Scheduler) reload(ctx context.Context) error {
	reminders, err := s.store.ListUnfiredReminders(ctx)
	if err != nil {
		return err
	}
	for _, pr := range reminders {
		s.push(pr)
	}
	s.publishSize()
	return nil
}

func (s *Scheduler) push(pr PendingReminder) {
	s.pushAt(pr, pr.Reminder.FireAt)
}

// pushAt tracks the wake instant separately from the reminder's fire
// instant; the two differ only for transient-failure retries. The fire
// instant must stay untouched because the emitted idempotency key is
// derived from it.
func (s *Scheduler) pushAt(pr PendingReminder, wakeAt time.Time) {
	eventID := pr.Reminder.EventID
	// A fresh submit supersedes any earlier cancellation of this event
	// (edit replans reminders under the same event id). Stale entries that
	// were cancelled in the store are rejected by the transition guard at
	// fire time.
	delete(s.cancelled, eventID)
	s.seq++
	heap.Push(&s.pending, &entry{item: pr, wakeAt: wakeAt, seq: s.seq})
	s.perEvent[eventID]++
}

// peek discards cancelled entries at the top of the heap and returns the
// next live entry, or nil when the heap is drained.
func (s *Scheduler) peek() *entry {
	for s.pending.Len() > 0 {
		top := s.pending[0]
		eventID := top.item.Reminder.EventID
		if !s.cancelled[eventID] {
			return top
		}
		heap.Pop(&s.pending)
		s.dropEventRef(eventID)
	}
	return nil
}

func (s *Scheduler) dropEventRef(eventID uuid.UUID) {
	s.perEvent[eventID]--
	if s.perEvent[eventID] <= 0 {
		delete(s.perEvent, eventID)
		delete(s.cancelled, eventID)
	}
}

// fireDue pops and emits every live reminder whose wake instant is at or
// before the current time. Fire instant == now counts as due.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.clock().UTC()
	emitted := 0

	for {
		top := s.peek()
		if top == nil || top.wakeAt.After(now) {
			break
		}
		heap.Pop(&s.pending)
		s.dropEventRef(top.item.Reminder.EventID)

		if s.emit(ctx, top.item, now) {
			emitted++
		} else if ctx.Err() == nil {
			// Transient store failure: retry this reminder shortly.
			s.pushAt(top.item, now.Add(s.config.RetryInterval))
		}
	}

	if s.metrics != nil {
		s.metrics.SchedulerWake(emitted)
	}
}

// emit marks the reminder due and puts it on the bus. Returns false only
// for transient failures that warrant a retry.
func (s *Scheduler) emit(ctx context.Context, pr PendingReminder, now time.Time) bool {
	rem := pr.Reminder

	if err := s.store.MarkReminderDue(ctx, rem.ID, now); err != nil {
		if errors.Is(err, domain.ErrStateTransitionDenied) {
			// Fired or cancelled elsewhere; nothing to do.
			return true
		}
		log.Printf("scheduler: reminder=%s mark due failed: %v", rem.ID, err)
		return false
	}

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

	if err := s.emitter.Emit(ctx, due); err != nil {
		// The reminder is already marked due; the reconciler rescues it
		// if the bus never delivers.
		log.Printf("scheduler: reminder=%s emit failed: %v", rem.ID, err)
		return true
	}

	log.Printf("scheduler: emitted reminder=%s event=%s fire_at=%s",
		rem.ID, rem.EventID, rem.FireAt.Format(time.RFC3339))
	return true
}

// nextWake computes how long to sleep: until the next live fire instant,
// capped at MaxWake. Zero means an entry is already due.
func (s *Scheduler) nextWake() time.Duration {
	top := s.peek()
	if top == nil {
		return s.config.MaxWake
	}
	until := top.wakeAt.Sub(s.clock().UTC())
	if until < 0 {
		return 0
	}
	if until > s.config.MaxWake {
		return s.config.MaxWake
	}
	return until
}

func (s *Scheduler) publishSize() {
	n := s.pending.Len()
	s.size.Store(int64(n))
	if s.metrics != nil {
		s.metrics.PendingSetSize(n)
	}
}

// entry is a heap element ordered by wake instant; seq breaks ties between
// equal instants so ordering stays stable.
type entry struct {
	item   PendingReminder
	wakeAt time.Time
	seq    uint64
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].wakeAt.Equal(h[j].wakeAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].wakeAt.Before(h[j].wakeAt)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
