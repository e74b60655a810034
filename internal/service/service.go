// Package service orchestrates the resolution pipeline: utterance in,
// stored event with scheduled reminders and a confirmation out.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
	"napomni/internal/intent"
	"napomni/internal/normalizer"
	"napomni/internal/planner"
	"napomni/internal/scheduler"
	"napomni/internal/temporal"
)

type Store interface {
	CreateEventWithReminders(ctx context.Context, event domain.Event, reminders []domain.Reminder) error
	CancelEventWithReminders(ctx context.Context, eventID uuid.UUID, userID int64) error
	ReplaceEventSchedule(ctx context.Context, event domain.Event, reminders []domain.Reminder) error
	GetEventByID(ctx context.Context, eventID uuid.UUID) (domain.Event, error)
	ListUserEvents(ctx context.Context, userID int64, from time.Time, limit, offset int) ([]domain.Event, error)
	GetOrCreateUserSettings(ctx context.Context, defaults domain.UserSettings) (domain.UserSettings, error)
	UpdateUserSettings(ctx context.Context, settings domain.UserSettings) error
	SetEventCalendarRef(ctx context.Context, eventID uuid.UUID, ref domain.CalendarRef) error
}

// ReminderScheduler is the live scheduler's submit/cancel surface.
type ReminderScheduler interface {
	Submit(ctx context.Context, reminders []scheduler.PendingReminder) error
	CancelEvent(ctx context.Context, eventID uuid.UUID) error
}

// Transcriber converts a voice message to text. Implemented by ai.Provider.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// CalendarClient mirrors events into the user's calendar.
type CalendarClient interface {
	PutEvent(ctx context.Context, event domain.Event) (domain.CalendarRef, error)
	DeleteEvent(ctx context.Context, ref domain.CalendarRef) error
}

// Augmenter attaches advisory notes. Fire-and-forget.
type Augmenter interface {
	Augment(ctx context.Context, event domain.Event)
}

// MetricsSink records pipeline metrics. Methods must be non-blocking.
type MetricsSink interface {
	ResolutionCompleted(outcome string, duration time.Duration)
}

type Config struct {
	// DefaultTimezone seeds settings for first-contact users.
	DefaultTimezone string
	// DefaultOffsets apply when an utterance names no reminders.
	DefaultOffsets []time.Duration
	// BackgroundTimeout bounds post-response work (advisory, calendar).
	BackgroundTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultTimezone:   "Europe/Moscow",
		DefaultOffsets:    []time.Duration{15 * time.Minute},
		BackgroundTimeout: 30 * time.Second,
	}
}

type Service struct {
	config     Config
	store      Store
	scheduler  ReminderScheduler
	resolver   *temporal.Resolver
	normalizer *normalizer.Normalizer
	planner    *planner.Planner

	transcriber Transcriber    // optional, nil = text only
	calendar    CalendarClient // optional, nil = no mirroring
	augmenter   Augmenter      // optional, nil = no advisory
	metrics     MetricsSink    // optional, nil = disabled

	clock      func() time.Time
	background sync.WaitGroup
}

func New(config Config, store Store, sched ReminderScheduler, resolver *temporal.Resolver, norm *normalizer.Normalizer) *Service {
	def := DefaultConfig()
	if config.DefaultTimezone == "" {
		config.DefaultTimezone = def.DefaultTimezone
	}
	if len(config.DefaultOffsets) == 0 {
		config.DefaultOffsets = def.DefaultOffsets
	}
	if config.BackgroundTimeout <= 0 {
		config.BackgroundTimeout = def.BackgroundTimeout
	}
	return &Service{
		config:     config,
		store:      store,
		scheduler:  sched,
		resolver:   resolver,
		normalizer: norm,
		planner:    planner.New(),
		clock:      time.Now,
	}
}

func (s *Service) WithTranscriber(t Transcriber) *Service {
	s.transcriber = t
	return s
}

func (s *Service) WithCalendar(c CalendarClient) *Service {
	s.calendar = c
	return s
}

func (s *Service) WithAugmenter(a Augmenter) *Service {
	s.augmenter = a
	return s
}

func (s *Service) WithMetrics(m MetricsSink) *Service {
	s.metrics = m
	return s
}

// Wait blocks until in-flight background work (advisory, calendar
// mirroring) finishes. Called during shutdown.
func (s *Service) Wait() {
	s.background.Wait()
}

// ResolveRequest is one utterance to turn into an event. Voice, when set,
// is transcribed first and Utterance is ignored.
type ResolveRequest struct {
	UserID        int64
	Utterance     string
	Voice         io.Reader
	VoiceFilename string
}

// Confirmation is what the user gets back synchronously. Advisory and
// calendar mirroring complete after it is returned.
type Confirmation struct {
	Event     domain.Event
	Reminders []domain.Reminder
	Warnings  []planner.Warning
	Text      string
}

// ResolveAndScheduleEvent runs the full pipeline: transcription (voice),
// intent extraction, temporal resolution, normalization, reminder
// planning, storage and scheduler hand-off. Advisory and calendar
// mirroring run in the background after the confirmation is built.
func (s *Service) ResolveAndScheduleEvent(ctx context.Context, req ResolveRequest) (Confirmation, error) {
	start := s.clock()
	conf, outcome, err := s.resolve(ctx, req)
	if s.metrics != nil {
		s.metrics.ResolutionCompleted(outcome, s.clock().Sub(start))
	}
	return conf, err
}

func (s *Service) resolve(ctx context.Context, req ResolveRequest) (Confirmation, string, error) {
	now := s.clock().UTC()

	settings, err := s.userSettings(ctx, req.UserID, now)
	if err != nil {
		return Confirmation{}, "error", fmt.Errorf("load user settings: %w", err)
	}

	text := req.Utterance
	if req.Voice != nil {
		if s.transcriber == nil {
			return Confirmation{}, "error", errors.New("voice input not supported: no transcriber configured")
		}
		text, err = s.transcriber.Transcribe(ctx, req.VoiceFilename, req.Voice)
		if err != nil {
			return Confirmation{}, "error", fmt.Errorf("transcribe voice message: %w", err)
		}
		log.Printf("service: user=%d transcribed voice message (%d chars)", req.UserID, len(text))
	}

	in, err := intent.Extract(text, now, settings.Timezone)
	if err != nil {
		return Confirmation{}, "unparsable", err
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		log.Printf("service: user=%d bad timezone %q, falling back to UTC", req.UserID, settings.Timezone)
		loc = time.UTC
	}

	span, err := s.resolver.Resolve(in.TimeExpr, now, loc)
	if err != nil {
		if errors.Is(err, temporal.ErrAmbiguous) {
			return Confirmation{}, "ambiguous", err
		}
		return Confirmation{}, "unparsable", err
	}

	event, err := s.normalizer.Normalize(normalizer.Input{
		UserID: req.UserID,
		Title:  in.Title,
		Span:   span,
		Now:    now,
	})
	if err != nil {
		return Confirmation{}, "rejected", err
	}

	reminders, warnings, err := s.planner.Plan(in.ReminderExprs, settings.DefaultOffsets, event, now)
	if err != nil {
		return Confirmation{}, "rejected", err
	}

	if err := s.store.CreateEventWithReminders(ctx, event, reminders); err != nil {
		return Confirmation{}, "error", fmt.Errorf("store event: %w", err)
	}

	if err := s.scheduler.Submit(ctx, pendingFor(event, reminders)); err != nil {
		// The reminders are durable; a restart reloads them.
		log.Printf("service: event=%s scheduler submit failed: %v", event.ID, err)
	}

	event.Reminders = reminders
	s.spawnBackground(event, false)

	log.Printf("service: user=%d event=%s created, start=%s reminders=%d",
		req.UserID, event.ID, event.Span.Start.Format(time.RFC3339), len(reminders))

	return Confirmation{
		Event:     event,
		Reminders: reminders,
		Warnings:  warnings,
		Text:      ConfirmationText(event, reminders, warnings),
	}, "created", nil
}

// CancelEvent soft-deletes the event, cancels its reminders and removes
// the calendar mirror.
func (s *Service) CancelEvent(ctx context.Context, userID int64, eventID uuid.UUID) error {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.UserID != userID {
		return domain.ErrNotFound
	}

	if err := s.store.CancelEventWithReminders(ctx, eventID, userID); err != nil {
		return err
	}
	if err := s.scheduler.CancelEvent(ctx, eventID); err != nil {
		log.Printf("service: event=%s scheduler cancel failed: %v", eventID, err)
	}

	if s.calendar != nil && event.Calendar != nil {
		ref := *event.Calendar
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			bgCtx, cancel := context.WithTimeout(context.Background(), s.config.BackgroundTimeout)
			defer cancel()
			if err := s.calendar.DeleteEvent(bgCtx, ref); err != nil {
				log.Printf("service: event=%s calendar delete failed: %v", eventID, err)
			}
		}()
	}

	log.Printf("service: user=%d event=%s cancelled", userID, eventID)
	return nil
}

// EditRequest reschedules an existing event from a fresh utterance. The
// utterance must contain a time expression; a non-empty remainder replaces
// the title.
type EditRequest struct {
	UserID    int64
	EventID   uuid.UUID
	Utterance string
}

// EditEvent re-resolves the utterance, swaps the event's span, title and
// reminders, and resubmits to the scheduler. Stale heap entries from the
// old plan are blocked by the store's terminal-state guard.
func (s *Service) EditEvent(ctx context.Context, req EditRequest) (Confirmation, error) {
	now := s.clock().UTC()

	current, err := s.store.GetEventByID(ctx, req.EventID)
	if err != nil {
		return Confirmation{}, err
	}
	if current.UserID != req.UserID {
		return Confirmation{}, domain.ErrNotFound
	}
	if current.State.IsTerminal() {
		return Confirmation{}, domain.ErrStateTransitionDenied
	}

	settings, err := s.userSettings(ctx, req.UserID, now)
	if err != nil {
		return Confirmation{}, fmt.Errorf("load user settings: %w", err)
	}

	in, err := intent.Extract(req.Utterance, now, settings.Timezone)
	if err != nil {
		return Confirmation{}, err
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}

	span, err := s.resolver.Resolve(in.TimeExpr, now, loc)
	if err != nil {
		return Confirmation{}, err
	}

	title := in.Title
	if title == "" {
		title = current.Title
	}

	validated, err := s.normalizer.Normalize(normalizer.Input{
		UserID: req.UserID,
		Title:  title,
		Span:   span,
		Now:    now,
	})
	if err != nil {
		return Confirmation{}, err
	}

	// Keep the identity; only the schedule changes.
	event := current
	event.Title = validated.Title
	event.Span = validated.Span
	event.UpdatedAt = now

	reminders, warnings, err := s.planner.Plan(in.ReminderExprs, settings.DefaultOffsets, event, now)
	if err != nil {
		return Confirmation{}, err
	}

	if err := s.store.ReplaceEventSchedule(ctx, event, reminders); err != nil {
		return Confirmation{}, fmt.Errorf("store event: %w", err)
	}

	if err := s.scheduler.CancelEvent(ctx, event.ID); err != nil {
		log.Printf("service: event=%s scheduler cancel failed: %v", event.ID, err)
	}
	if err := s.scheduler.Submit(ctx, pendingFor(event, reminders)); err != nil {
		log.Printf("service: event=%s scheduler submit failed: %v", event.ID, err)
	}

	event.Reminders = reminders
	s.spawnBackground(event, true)

	log.Printf("service: user=%d event=%s rescheduled to %s",
		req.UserID, event.ID, event.Span.Start.Format(time.RFC3339))

	return Confirmation{
		Event:     event,
		Reminders: reminders,
		Warnings:  warnings,
		Text:      ConfirmationText(event, reminders, warnings),
	}, nil
}

// ListEvents returns the user's upcoming and ongoing events.
func (s *Service) ListEvents(ctx context.Context, userID int64, limit, offset int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListUserEvents(ctx, userID, s.clock().UTC(), limit, offset)
}

// Settings returns the user's settings, seeding defaults on first contact.
func (s *Service) Settings(ctx context.Context, userID int64) (domain.UserSettings, error) {
	return s.userSettings(ctx, userID, s.clock().UTC())
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.UserSettings) error {
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", settings.Timezone, err)
	}
	for _, offset := range settings.DefaultOffsets {
		if offset <= 0 {
			return fmt.Errorf("%w: default offset must be positive", planner.ErrInvalidOffset)
		}
	}
	settings.UpdatedAt = s.clock().UTC()
	return s.store.UpdateUserSettings(ctx, settings)
}

func (s *Service) userSettings(ctx context.Context, userID int64, now time.Time) (domain.UserSettings, error) {
	return s.store.GetOrCreateUserSettings(ctx, domain.UserSettings{
		UserID:           userID,
		Timezone:         s.config.DefaultTimezone,
		DefaultOffsets:   s.config.DefaultOffsets,
		RemindersEnabled: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

// spawnBackground runs advisory generation and calendar mirroring after
// the confirmation has been returned. Both are best-effort.
func (s *Service) spawnBackground(event domain.Event, isUpdate bool) {
	if s.augmenter == nil && s.calendar == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), s.config.BackgroundTimeout)
		defer cancel()

		if s.augmenter != nil {
			s.augmenter.Augment(bgCtx, event)
		}

		if s.calendar != nil {
			ref, err := s.calendar.PutEvent(bgCtx, event)
			if err != nil {
				log.Printf("service: event=%s calendar mirror failed: %v", event.ID, err)
				return
			}
			if isUpdate && event.Calendar != nil {
				// Same UID, object overwritten in place; ref unchanged.
				return
			}
			if err := s.store.SetEventCalendarRef(bgCtx, event.ID, ref); err != nil {
				log.Printf("service: event=%s failed to store calendar ref: %v", event.ID, err)
			}
		}
	}()
}

func pendingFor(event domain.Event, reminders []domain.Reminder) []scheduler.PendingReminder {
	pending := make([]scheduler.PendingReminder, len(reminders))
	for i, rem := range reminders {
		pending[i] = scheduler.PendingReminder{
			Reminder:   rem,
			Title:      event.Title,
			EventStart: event.Span.Start,
			Timezone:   event.Span.Timezone,
		}
	}
	return pending
}
