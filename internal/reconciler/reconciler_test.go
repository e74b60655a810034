package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
	"napomni/internal/scheduler"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type mockStore struct {
	mu      sync.Mutex
	stuck   []scheduler.PendingReminder
	err     error
	queries []time.Time
}

func (m *mockStore) GetStuckDueReminders(ctx context.Context, olderThan time.Time, maxResults int) ([]scheduler.PendingReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, olderThan)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.stuck) > maxResults {
		return m.stuck[:maxResults], nil
	}
	return m.stuck, nil
}

type mockEmitter struct {
	mu      sync.Mutex
	emitted []domain.ReminderDue
	err     error
}

func (m *mockEmitter) Emit(ctx context.Context, due domain.ReminderDue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.emitted = append(m.emitted, due)
	return nil
}

func (m *mockEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emitted)
}

func stuckReminder(age time.Duration) scheduler.PendingReminder {
	fireAt := testNow.Add(-age)
	return scheduler.PendingReminder{
		Reminder: domain.Reminder{
			ID:        uuid.New(),
			EventID:   uuid.New(),
			UserID:    42,
			Offset:    15 * time.Minute,
			FireAt:    fireAt,
			State:     domain.ReminderStateDue,
			UpdatedAt: fireAt,
		},
		Title:      "планёрка",
		EventStart: fireAt.Add(15 * time.Minute),
		Timezone:   "Europe/Moscow",
	}
}

func newTestReconciler(store *mockStore, emitter *mockEmitter) *Reconciler {
	r := New(DefaultConfig(), store, emitter)
	r.clock = func() time.Time { return testNow }
	return r
}

func TestRunCycle_ReEmitsStuckReminders(t *testing.T) {
	first := stuckReminder(30 * time.Minute)
	second := stuckReminder(20 * time.Minute)
	store := &mockStore{stuck: []scheduler.PendingReminder{first, second}}
	emitter := &mockEmitter{}

	r := newTestReconciler(store, emitter)
	r.runCycle(context.Background())

	if emitter.count() != 2 {
		t.Fatalf("emitted %d, want 2", emitter.count())
	}

	due := emitter.emitted[0]
	if due.ReminderID != first.Reminder.ID {
		t.Errorf("first re-emit = %s, want %s", due.ReminderID, first.Reminder.ID)
	}
	want := domain.DueIdempotencyKey(first.Reminder.ID, first.Reminder.FireAt)
	if due.IdempotencyKey != want {
		t.Error("re-emit must carry the original idempotency key")
	}
}

func TestRunCycle_ThresholdApplied(t *testing.T) {
	store := &mockStore{}
	r := newTestReconciler(store, &mockEmitter{})
	r.runCycle(context.Background())

	if len(store.queries) != 1 {
		t.Fatalf("queries = %d, want 1", len(store.queries))
	}
	want := testNow.Add(-DefaultConfig().Threshold)
	if !store.queries[0].Equal(want) {
		t.Errorf("olderThan = %s, want %s", store.queries[0], want)
	}
}

func TestRunCycle_StoreErrorAbortsCycle(t *testing.T) {
	store := &mockStore{err: errors.New("db down")}
	emitter := &mockEmitter{}

	r := newTestReconciler(store, emitter)
	r.runCycle(context.Background())

	if emitter.count() != 0 {
		t.Errorf("emitted %d after store error, want 0", emitter.count())
	}
}

func TestRunCycle_EmitFailureContinues(t *testing.T) {
	store := &mockStore{stuck: []scheduler.PendingReminder{
		stuckReminder(30 * time.Minute),
		stuckReminder(20 * time.Minute),
	}}
	emitter := &mockEmitter{err: errors.New("buffer full")}

	r := newTestReconciler(store, emitter)
	// Both emits fail; the cycle must finish without panicking and leave
	// the reminders for the next interval.
	r.runCycle(context.Background())

	if emitter.count() != 0 {
		t.Errorf("emitted %d, want 0", emitter.count())
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &mockStore{}
	r := newTestReconciler(store, &mockEmitter{})
	r.config.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
