package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
	"napomni/internal/intent"
	"napomni/internal/normalizer"
	"napomni/internal/scheduler"
	"napomni/internal/temporal"
)

// Monday morning, UTC.
var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	events    map[uuid.UUID]domain.Event
	reminders map[uuid.UUID][]domain.Reminder
	settings  map[int64]domain.UserSettings
	refs      map[uuid.UUID]domain.CalendarRef
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    make(map[uuid.UUID]domain.Event),
		reminders: make(map[uuid.UUID][]domain.Reminder),
		settings:  make(map[int64]domain.UserSettings),
		refs:      make(map[uuid.UUID]domain.CalendarRef),
	}
}

func (f *fakeStore) CreateEventWithReminders(ctx context.Context, event domain.Event, reminders []domain.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.events[event.ID] = event
	f.reminders[event.ID] = reminders
	return nil
}

func (f *fakeStore) CancelEventWithReminders(ctx context.Context, eventID uuid.UUID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[eventID]
	if !ok || event.UserID != userID {
		return domain.ErrNotFound
	}
	if event.State.IsTerminal() {
		return domain.ErrStateTransitionDenied
	}
	event.State = domain.EventStateCancelled
	f.events[eventID] = event
	return nil
}

func (f *fakeStore) ReplaceEventSchedule(ctx context.Context, event domain.Event, reminders []domain.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[event.ID]; !ok {
		return domain.ErrNotFound
	}
	f.events[event.ID] = event
	f.reminders[event.ID] = reminders
	return nil
}

func (f *fakeStore) GetEventByID(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return event, nil
}

func (f *fakeStore) ListUserEvents(ctx context.Context, userID int64, from time.Time, limit, offset int) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Event
	for _, event := range f.events {
		if event.UserID == userID && event.State != domain.EventStateCancelled && !event.Span.End.Before(from) {
			result = append(result, event)
		}
	}
	return result, nil
}

func (f *fakeStore) GetOrCreateUserSettings(ctx context.Context, defaults domain.UserSettings) (domain.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[defaults.UserID]; ok {
		return s, nil
	}
	f.settings[defaults.UserID] = defaults
	return defaults, nil
}

func (f *fakeStore) UpdateUserSettings(ctx context.Context, settings domain.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.settings[settings.UserID]; !ok {
		return domain.ErrNotFound
	}
	f.settings[settings.UserID] = settings
	return nil
}

func (f *fakeStore) SetEventCalendarRef(ctx context.Context, eventID uuid.UUID, ref domain.CalendarRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[eventID] = ref
	return nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	submitted [][]scheduler.PendingReminder
	cancelled []uuid.UUID
}

func (f *fakeScheduler) Submit(ctx context.Context, reminders []scheduler.PendingReminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, reminders)
	return nil
}

func (f *fakeScheduler) CancelEvent(ctx context.Context, eventID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, eventID)
	return nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	return f.text, f.err
}

type fakeCalendar struct {
	mu      sync.Mutex
	puts    []domain.Event
	deletes []domain.CalendarRef
}

func (f *fakeCalendar) PutEvent(ctx context.Context, event domain.Event) (domain.CalendarRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, event)
	return domain.CalendarRef{ID: event.ID.String(), URL: "https://dav.example/" + event.ID.String() + ".ics"}, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, ref domain.CalendarRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return nil
}

type fakeAugmenter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeAugmenter) Augment(ctx context.Context, event domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) ResolutionCompleted(outcome string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingMetrics) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

func newTestService(store *fakeStore, sched *fakeScheduler) *Service {
	s := New(Config{}, store, sched,
		temporal.New(temporal.Config{}),
		normalizer.New(normalizer.Config{}))
	s.clock = func() time.Time { return testNow }
	return s
}

func TestResolveAndScheduleEvent(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	m := &recordingMetrics{}
	s := newTestService(store, sched).WithMetrics(m)

	conf, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:    42,
		Utterance: "++событие презентация для руководства в пятницу 15:00-16:00 --remind 1h,15m",
	})
	if err != nil {
		t.Fatalf("ResolveAndScheduleEvent: %v", err)
	}

	event := conf.Event
	if event.Title != "презентация для руководства" {
		t.Errorf("title = %q", event.Title)
	}
	// Friday 15:00 Moscow is 12:00 UTC.
	wantStart := time.Date(2024, 1, 19, 12, 0, 0, 0, time.UTC)
	if !event.Span.Start.Equal(wantStart) {
		t.Errorf("start = %s, want %s", event.Span.Start, wantStart)
	}
	if event.Span.Duration() != time.Hour {
		t.Errorf("duration = %s, want 1h", event.Span.Duration())
	}

	if len(conf.Reminders) != 2 {
		t.Fatalf("reminders = %d, want 2", len(conf.Reminders))
	}
	// Sorted ascending by fire instant: 1h before, then 15m before.
	if conf.Reminders[0].Offset != time.Hour || conf.Reminders[1].Offset != 15*time.Minute {
		t.Errorf("reminder order = [%s %s], want [1h 15m]",
			conf.Reminders[0].Offset, conf.Reminders[1].Offset)
	}

	if _, ok := store.events[event.ID]; !ok {
		t.Error("event not persisted")
	}
	if len(sched.submitted) != 1 || len(sched.submitted[0]) != 2 {
		t.Error("reminders not handed to scheduler")
	}

	if !strings.Contains(conf.Text, "презентация для руководства") {
		t.Errorf("confirmation missing title: %q", conf.Text)
	}
	if !strings.Contains(conf.Text, "пятница") || !strings.Contains(conf.Text, "15:00-16:00") {
		t.Errorf("confirmation missing local schedule: %q", conf.Text)
	}
	if !strings.Contains(conf.Text, "за 1ч, за 15м") {
		t.Errorf("confirmation missing reminders: %q", conf.Text)
	}
	if m.last() != "created" {
		t.Errorf("outcome = %q, want created", m.last())
	}
}

func TestResolveAndScheduleEvent_VoiceTranscription(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	s := newTestService(store, sched).
		WithTranscriber(&fakeTranscriber{text: "созвон с командой завтра в 11"})

	conf, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:        42,
		Voice:         strings.NewReader("fake-ogg-bytes"),
		VoiceFilename: "voice.ogg",
	})
	if err != nil {
		t.Fatalf("ResolveAndScheduleEvent: %v", err)
	}

	if conf.Event.Title != "созвон с командой" {
		t.Errorf("title = %q", conf.Event.Title)
	}
	// Tuesday 11:00 Moscow is 08:00 UTC.
	wantStart := time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC)
	if !conf.Event.Span.Start.Equal(wantStart) {
		t.Errorf("start = %s, want %s", conf.Event.Span.Start, wantStart)
	}
	// No --remind in the utterance: defaults apply.
	if len(conf.Reminders) != 1 || conf.Reminders[0].Offset != 15*time.Minute {
		t.Errorf("reminders = %v, want single default 15m", conf.Reminders)
	}
}

func TestResolveAndScheduleEvent_Unparsable(t *testing.T) {
	store := newFakeStore()
	m := &recordingMetrics{}
	s := newTestService(store, &fakeScheduler{}).WithMetrics(m)

	_, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:    42,
		Utterance: "++событие обсудить всё когда-нибудь",
	})
	var parseErr *intent.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want intent.ParseError", err)
	}
	if parseErr.Field != intent.FieldTime {
		t.Errorf("failed field = %q, want time", parseErr.Field)
	}
	if len(store.events) != 0 {
		t.Error("unparsable utterance must not create an event")
	}
	if m.last() != "unparsable" {
		t.Errorf("outcome = %q, want unparsable", m.last())
	}
}

func TestResolveAndScheduleEvent_BackgroundWork(t *testing.T) {
	store := newFakeStore()
	cal := &fakeCalendar{}
	aug := &fakeAugmenter{}
	s := newTestService(store, &fakeScheduler{}).WithCalendar(cal).WithAugmenter(aug)

	conf, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:    42,
		Utterance: "планёрка завтра в 10",
	})
	if err != nil {
		t.Fatalf("ResolveAndScheduleEvent: %v", err)
	}
	s.Wait()

	if len(aug.events) != 1 || aug.events[0].ID != conf.Event.ID {
		t.Error("augmenter not invoked for the new event")
	}
	if len(cal.puts) != 1 {
		t.Fatal("calendar mirror not written")
	}
	if _, ok := store.refs[conf.Event.ID]; !ok {
		t.Error("calendar ref not persisted")
	}
}

func TestCancelEvent(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	cal := &fakeCalendar{}
	s := newTestService(store, sched).WithCalendar(cal)

	conf, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:    42,
		Utterance: "встреча завтра в 14:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Wait()

	// Simulate the stored calendar ref being visible on reload.
	store.mu.Lock()
	event := store.events[conf.Event.ID]
	ref := store.refs[conf.Event.ID]
	event.Calendar = &ref
	store.events[conf.Event.ID] = event
	store.mu.Unlock()

	if err := s.CancelEvent(context.Background(), 42, conf.Event.ID); err != nil {
		t.Fatalf("CancelEvent: %v", err)
	}
	s.Wait()

	if got := store.events[conf.Event.ID].State; got != domain.EventStateCancelled {
		t.Errorf("state = %q, want cancelled", got)
	}
	if len(sched.cancelled) != 1 || sched.cancelled[0] != conf.Event.ID {
		t.Error("scheduler cancel not requested")
	}
	if len(cal.deletes) != 1 {
		t.Error("calendar mirror not deleted")
	}
}

func TestCancelEvent_WrongUser(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &fakeScheduler{})

	conf, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:    42,
		Utterance: "встреча завтра в 14:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = s.CancelEvent(context.Background(), 7, conf.Event.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("CancelEvent as another user = %v, want ErrNotFound", err)
	}
}

func TestEditEvent_KeepsTitleWhenUtteranceHasOnlyTime(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{}
	s := newTestService(store, sched)

	conf, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:    42,
		Utterance: "презентация в пятницу 15:00-16:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Only a new time: the title carries over, reminders are replanned.
	edited, err := s.EditEvent(context.Background(), EditRequest{
		UserID:    42,
		EventID:   conf.Event.ID,
		Utterance: "завтра в 11",
	})
	if err != nil {
		t.Fatalf("EditEvent: %v", err)
	}

	if edited.Event.ID != conf.Event.ID {
		t.Error("edit must keep the event identity")
	}
	if edited.Event.Title != "презентация" {
		t.Errorf("title = %q, want carried over", edited.Event.Title)
	}
	wantStart := time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC)
	if !edited.Event.Span.Start.Equal(wantStart) {
		t.Errorf("start = %s, want %s", edited.Event.Span.Start, wantStart)
	}

	// Old plan cancelled in the live scheduler, new one submitted.
	if len(sched.cancelled) != 1 || sched.cancelled[0] != conf.Event.ID {
		t.Error("old reminders not cancelled in scheduler")
	}
	if len(sched.submitted) != 2 {
		t.Errorf("submissions = %d, want 2 (create + edit)", len(sched.submitted))
	}
}

func TestEditEvent_TerminalEventRejected(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &fakeScheduler{})

	conf, err := s.ResolveAndScheduleEvent(context.Background(), ResolveRequest{
		UserID:    42,
		Utterance: "встреча завтра в 14:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CancelEvent(context.Background(), 42, conf.Event.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = s.EditEvent(context.Background(), EditRequest{
		UserID:    42,
		EventID:   conf.Event.ID,
		Utterance: "послезавтра в 15:00",
	})
	if !errors.Is(err, domain.ErrStateTransitionDenied) {
		t.Errorf("EditEvent on cancelled = %v, want ErrStateTransitionDenied", err)
	}
}

func TestUpdateSettings_Validation(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &fakeScheduler{})

	// Seed settings.
	if _, err := s.Settings(context.Background(), 42); err != nil {
		t.Fatalf("Settings: %v", err)
	}

	err := s.UpdateSettings(context.Background(), domain.UserSettings{
		UserID:   42,
		Timezone: "Neverland/Nowhere",
	})
	if err == nil {
		t.Error("invalid timezone accepted")
	}

	err = s.UpdateSettings(context.Background(), domain.UserSettings{
		UserID:         42,
		Timezone:       "Europe/Moscow",
		DefaultOffsets: []time.Duration{-time.Minute},
	})
	if err == nil {
		t.Error("negative default offset accepted")
	}

	err = s.UpdateSettings(context.Background(), domain.UserSettings{
		UserID:           42,
		Timezone:         "Asia/Novosibirsk",
		DefaultOffsets:   []time.Duration{30 * time.Minute},
		RemindersEnabled: true,
	})
	if err != nil {
		t.Errorf("valid settings rejected: %v", err)
	}
}
