package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type mockStore struct {
	mu       sync.Mutex
	settings map[int64]domain.UserSettings
	states   map[uuid.UUID]domain.ReminderState
	attempts []domain.DeliveryAttempt
}

func newMockStore() *mockStore {
	return &mockStore{
		settings: make(map[int64]domain.UserSettings),
		states:   make(map[uuid.UUID]domain.ReminderState),
	}
}

func (m *mockStore) GetUserSettings(ctx context.Context, userID int64) (domain.UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[userID]
	if !ok {
		return domain.UserSettings{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockStore) InsertDeliveryAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *mockStore) MarkReminderFired(ctx context.Context, reminderID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[reminderID].IsTerminal() {
		return domain.ErrStateTransitionDenied
	}
	m.states[reminderID] = domain.ReminderStateFired
	return nil
}

func (m *mockStore) state(id uuid.UUID) domain.ReminderState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

func (m *mockStore) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

type mockSender struct {
	mu      sync.Mutex
	results []NotificationResult
	calls   []NotificationRequest
}

func (m *mockSender) Send(ctx context.Context, req NotificationRequest) NotificationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.results) == 0 {
		return NotificationResult{StatusCode: 200}
	}
	result := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return result
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDue() domain.ReminderDue {
	return domain.ReminderDue{
		ReminderID:     uuid.New(),
		EventID:        uuid.New(),
		UserID:         42,
		Title:          "презентация",
		EventStart:     testNow.Add(15 * time.Minute),
		Timezone:       "Europe/Moscow",
		Offset:         15 * time.Minute,
		FireAt:         testNow,
		EmittedAt:      testNow,
		IdempotencyKey: "abc123",
	}
}

func newTestNotifier(store *mockStore, sender *mockSender) *Notifier {
	n := New(store, sender, Endpoint{URL: "https://gateway.example/notify", Secret: "s3cret"})
	n.backoff = []time.Duration{0, 0, 0, 0}
	n.clock = func() time.Time { return testNow }
	return n
}

func TestDeliver_SuccessMarksFired(t *testing.T) {
	store := newMockStore()
	sender := &mockSender{}
	n := newTestNotifier(store, sender)

	due := testDue()
	if err := n.Deliver(context.Background(), due); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if got := store.state(due.ReminderID); got != domain.ReminderStateFired {
		t.Errorf("state = %q, want fired", got)
	}
	if sender.callCount() != 1 {
		t.Errorf("send calls = %d, want 1", sender.callCount())
	}
	if store.attemptCount() != 1 {
		t.Errorf("recorded attempts = %d, want 1", store.attemptCount())
	}
}

func TestDeliver_RetriesTransientFailure(t *testing.T) {
	store := newMockStore()
	sender := &mockSender{results: []NotificationResult{
		{StatusCode: 503},
		{StatusCode: 200},
	}}
	n := newTestNotifier(store, sender)

	due := testDue()
	if err := n.Deliver(context.Background(), due); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if sender.callCount() != 2 {
		t.Errorf("send calls = %d, want 2", sender.callCount())
	}
	if got := store.state(due.ReminderID); got != domain.ReminderStateFired {
		t.Errorf("state = %q, want fired", got)
	}
	if store.attemptCount() != 2 {
		t.Errorf("recorded attempts = %d, want 2", store.attemptCount())
	}
}

func TestDeliver_ExhaustedRetriesStillSettles(t *testing.T) {
	store := newMockStore()
	sender := &mockSender{results: []NotificationResult{{StatusCode: 500}}}
	n := newTestNotifier(store, sender)

	due := testDue()
	if err := n.Deliver(context.Background(), due); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if sender.callCount() != maxAttempts {
		t.Errorf("send calls = %d, want %d", sender.callCount(), maxAttempts)
	}
	// Undeliverable reminders never stay due.
	if got := store.state(due.ReminderID); got != domain.ReminderStateFired {
		t.Errorf("state = %q, want fired after exhausted retries", got)
	}
}

func TestDeliver_NonRetryableStopsEarly(t *testing.T) {
	store := newMockStore()
	sender := &mockSender{results: []NotificationResult{{StatusCode: 404}}}
	n := newTestNotifier(store, sender)

	due := testDue()
	if err := n.Deliver(context.Background(), due); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if sender.callCount() != 1 {
		t.Errorf("send calls = %d, want 1 for non-retryable status", sender.callCount())
	}
	if got := store.state(due.ReminderID); got != domain.ReminderStateFired {
		t.Errorf("state = %q, want fired", got)
	}
}

func TestDeliver_MutedUserSkipsDelivery(t *testing.T) {
	store := newMockStore()
	store.settings[42] = domain.UserSettings{UserID: 42, RemindersEnabled: false}
	sender := &mockSender{}
	n := newTestNotifier(store, sender)

	due := testDue()
	if err := n.Deliver(context.Background(), due); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if sender.callCount() != 0 {
		t.Errorf("send calls = %d, want 0 for muted user", sender.callCount())
	}
	if got := store.state(due.ReminderID); got != domain.ReminderStateFired {
		t.Errorf("state = %q, want fired", got)
	}
}

func TestDeliver_ReplayOfSettledReminder(t *testing.T) {
	store := newMockStore()
	sender := &mockSender{}
	n := newTestNotifier(store, sender)

	due := testDue()
	store.states[due.ReminderID] = domain.ReminderStateFired

	// A replay delivers again but the terminal-state guard absorbs the
	// second transition without error.
	if err := n.Deliver(context.Background(), due); err != nil {
		t.Fatalf("Deliver replay: %v", err)
	}
}

type blockedBreaker struct{}

func (blockedBreaker) Allow(string) bool    { return false }
func (blockedBreaker) ReportSuccess(string) {}
func (blockedBreaker) ReportFailure(string) {}

func TestDeliver_OpenBreakerBlocksAttempts(t *testing.T) {
	store := newMockStore()
	sender := &mockSender{}
	n := newTestNotifier(store, sender).WithBreaker(blockedBreaker{})

	due := testDue()
	if err := n.Deliver(context.Background(), due); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if sender.callCount() != 0 {
		t.Errorf("send calls = %d, want 0 with open circuit", sender.callCount())
	}
	if got := store.state(due.ReminderID); got != domain.ReminderStateFired {
		t.Errorf("state = %q, want fired (settled despite open circuit)", got)
	}
}

func TestRun_DrainsBufferOnShutdown(t *testing.T) {
	store := newMockStore()
	sender := &mockSender{}
	n := newTestNotifier(store, sender)

	ch := make(chan domain.ReminderDue, 4)
	dues := []domain.ReminderDue{testDue(), testDue(), testDue()}
	for _, due := range dues {
		ch <- due
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx, ch)

	for _, due := range dues {
		if got := store.state(due.ReminderID); got != domain.ReminderStateFired {
			t.Errorf("reminder %s state = %q, want fired after drain", due.ReminderID, got)
		}
	}
}

func TestMessageText(t *testing.T) {
	due := testDue()
	text := MessageText(due)

	if !strings.Contains(text, "презентация") {
		t.Errorf("text %q missing title", text)
	}
	// 10:15 UTC is 13:15 in Moscow.
	if !strings.Contains(text, "13:15") {
		t.Errorf("text %q missing local start time", text)
	}
	if !strings.Contains(text, "15м") {
		t.Errorf("text %q missing offset", text)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   string
	}{
		{name: "ok", status: 200, want: "2xx"},
		{name: "client error", status: 404, want: "4xx"},
		{name: "server error", status: 503, want: "5xx"},
		{name: "timeout", err: errors.New("context deadline exceeded"), want: "timeout"},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: "connection_error"},
		{name: "other", err: errors.New("boom"), want: "other_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.status, tt.err); got != tt.want {
				t.Errorf("classifyStatus = %q, want %q", got, tt.want)
			}
		})
	}
}
