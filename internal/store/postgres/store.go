// Package postgres persists events, reminders, delivery attempts, user
// settings and the retrieval corpus.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"napomni/internal/domain"
	"napomni/internal/notifier"
	"napomni/internal/scheduler"
)

// Store implements the scheduler, notifier, reconciler and service store
// interfaces on PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateEventWithReminders inserts the event and its reminders atomically.
// Either everything lands or nothing does; a crash mid-create never leaves
// reminders without an event.
func (s *Store) CreateEventWithReminders(ctx context.Context, event domain.Event, reminders []domain.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, queryInsertEvent,
		event.ID,
		event.UserID,
		event.Title,
		event.Span.Start,
		event.Span.End,
		event.Span.Timezone,
		string(event.State),
		event.Advisory,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrStateTransitionDenied
		}
		return err
	}

	for _, rem := range reminders {
		if err := insertReminder(ctx, tx, rem); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertReminder(ctx context.Context, tx *sql.Tx, rem domain.Reminder) error {
	_, err := tx.ExecContext(ctx, queryInsertReminder,
		rem.ID,
		rem.EventID,
		rem.UserID,
		int64(rem.Offset.Seconds()),
		rem.FireAt,
		string(rem.State),
		rem.CreatedAt,
		rem.UpdatedAt,
	)
	return err
}

func (s *Store) GetEventByID(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	event, err := scanEvent(s.db.QueryRowContext(ctx, queryGetEventByID, eventID))
	if err == sql.ErrNoRows {
		return domain.Event{}, domain.ErrNotFound
	}
	return event, err
}

// ListUserEvents returns the user's upcoming and ongoing events, soonest
// first. Cancelled events are excluded; they are retained in storage only.
func (s *Store) ListUserEvents(ctx context.Context, userID int64, from time.Time, limit, offset int) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserEvents, userID, from, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func (s *Store) GetEventReminders(ctx context.Context, eventID uuid.UUID) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, queryGetEventReminders, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reminder
	for rows.Next() {
		var rem domain.Reminder
		var offsetSec int64
		var state string
		err := rows.Scan(
			&rem.ID, &rem.EventID, &rem.UserID, &offsetSec,
			&rem.FireAt, &state, &rem.CreatedAt, &rem.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		rem.Offset = time.Duration(offsetSec) * time.Second
		rem.State = domain.ReminderState(state)
		result = append(result, rem)
	}
	return result, rows.Err()
}

// CancelEventWithReminders soft-deletes the event and cancels its live
// reminders in one transaction. Already-cancelled events are rejected with
// domain.ErrStateTransitionDenied.
func (s *Store) CancelEventWithReminders(ctx context.Context, eventID uuid.UUID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryCancelEvent, eventID, userID, now)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var state string
		err := tx.QueryRowContext(ctx, queryGetEventState, eventID, userID).Scan(&state)
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrStateTransitionDenied
	}

	if _, err := tx.ExecContext(ctx, queryCancelEventReminders, eventID, now); err != nil {
		return err
	}

	return tx.Commit()
}

// ReplaceEventSchedule rewrites the event's title and span and swaps its
// live reminders for the replanned set, atomically.
func (s *Store) ReplaceEventSchedule(ctx context.Context, event domain.Event, reminders []domain.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryUpdateEventSpan,
		event.ID,
		event.UserID,
		event.Title,
		event.Span.Start,
		event.Span.End,
		event.Span.Timezone,
		event.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var state string
		err := tx.QueryRowContext(ctx, queryGetEventState, event.ID, event.UserID).Scan(&state)
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrStateTransitionDenied
	}

	if _, err := tx.ExecContext(ctx, queryCancelEventReminders, event.ID, event.UpdatedAt); err != nil {
		return err
	}

	for _, rem := range reminders {
		if err := insertReminder(ctx, tx, rem); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListUnfiredReminders returns pending and due reminders of live events
// with the owning event's metadata, ordered by fire instant.
func (s *Store) ListUnfiredReminders(ctx context.Context) ([]scheduler.PendingReminder, error) {
	rows, err := s.db.QueryContext(ctx, queryListUnfiredReminders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPendingReminders(rows)
}

func (s *Store) MarkReminderDue(ctx context.Context, reminderID uuid.UUID, at time.Time) error {
	return s.transitionReminder(ctx, queryMarkReminderDue, reminderID, at)
}

func (s *Store) MarkReminderFired(ctx context.Context, reminderID uuid.UUID, at time.Time) error {
	return s.transitionReminder(ctx, queryMarkReminderFired, reminderID, at)
}

// transitionReminder applies a guarded state update. The guard lives in the
// WHERE clause so the check and the write are one atomic statement.
func (s *Store) transitionReminder(ctx context.Context, query string, reminderID uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, query, reminderID, at)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var state string
		err := s.db.QueryRowContext(ctx, queryGetReminderState, reminderID).Scan(&state)
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrStateTransitionDenied
	}
	return nil
}

func (s *Store) InsertDeliveryAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	_, err := s.db.ExecContext(ctx, queryInsertDeliveryAttempt,
		attempt.ID,
		attempt.ReminderID,
		attempt.Attempt,
		attempt.StatusCode,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	return err
}

// GetStuckDueReminders returns reminders stuck in state due since before
// olderThan, oldest first, for the reconciler to re-emit.
func (s *Store) GetStuckDueReminders(ctx context.Context, olderThan time.Time, maxResults int) ([]scheduler.PendingReminder, error) {
	rows, err := s.db.QueryContext(ctx, queryGetStuckDueReminders, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPendingReminders(rows)
}

func (s *Store) GetUserSettings(ctx context.Context, userID int64) (domain.UserSettings, error) {
	var settings domain.UserSettings
	var offsetsSec []int64

	err := s.db.QueryRowContext(ctx, queryGetUserSettings, userID).Scan(
		&settings.UserID,
		&settings.Timezone,
		pq.Array(&offsetsSec),
		&settings.RemindersEnabled,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.UserSettings{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserSettings{}, err
	}

	settings.DefaultOffsets = make([]time.Duration, len(offsetsSec))
	for i, sec := range offsetsSec {
		settings.DefaultOffsets[i] = time.Duration(sec) * time.Second
	}
	return settings, nil
}

// GetOrCreateUserSettings returns the user's settings, seeding the given
// defaults on first contact.
func (s *Store) GetOrCreateUserSettings(ctx context.Context, defaults domain.UserSettings) (domain.UserSettings, error) {
	offsetsSec := make([]int64, len(defaults.DefaultOffsets))
	for i, offset := range defaults.DefaultOffsets {
		offsetsSec[i] = int64(offset.Seconds())
	}

	_, err := s.db.ExecContext(ctx, queryInsertUserSettings,
		defaults.UserID,
		defaults.Timezone,
		pq.Array(offsetsSec),
		defaults.RemindersEnabled,
		defaults.CreatedAt,
		defaults.UpdatedAt,
	)
	if err != nil {
		return domain.UserSettings{}, err
	}
	return s.GetUserSettings(ctx, defaults.UserID)
}

func (s *Store) UpdateUserSettings(ctx context.Context, settings domain.UserSettings) error {
	offsetsSec := make([]int64, len(settings.DefaultOffsets))
	for i, offset := range settings.DefaultOffsets {
		offsetsSec[i] = int64(offset.Seconds())
	}

	result, err := s.db.ExecContext(ctx, queryUpdateUserSettings,
		settings.UserID,
		settings.Timezone,
		pq.Array(offsetsSec),
		settings.RemindersEnabled,
		settings.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateEventAdvisory attaches the advisory note. Events that reached a
// terminal state while the note was being generated are left untouched;
// the update is silently skipped.
func (s *Store) UpdateEventAdvisory(ctx context.Context, eventID uuid.UUID, advisory string) error {
	_, err := s.db.ExecContext(ctx, queryUpdateEventAdvisory, eventID, advisory, time.Now().UTC())
	return err
}

func (s *Store) SetEventCalendarRef(ctx context.Context, eventID uuid.UUID, ref domain.CalendarRef) error {
	_, err := s.db.ExecContext(ctx, querySetEventCalendarRef, eventID, ref.ID, ref.URL, time.Now().UTC())
	return err
}

// SweepEventStates advances event lifecycle states against now: scheduled
// events whose start has passed become active, active events whose end has
// passed become completed.
func (s *Store) SweepEventStates(ctx context.Context, now time.Time) (activated, completed int64, err error) {
	result, err := s.db.ExecContext(ctx, querySweepActivateEvents, now)
	if err != nil {
		return 0, 0, err
	}
	activated, err = result.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	result, err = s.db.ExecContext(ctx, querySweepCompleteEvents, now)
	if err != nil {
		return activated, 0, err
	}
	completed, err = result.RowsAffected()
	if err != nil {
		return activated, 0, err
	}
	return activated, completed, nil
}

func (s *Store) InsertPassage(ctx context.Context, passage domain.Passage, embedding []float32) error {
	_, err := s.db.ExecContext(ctx, queryInsertPassage,
		passage.ID,
		passage.UserID,
		passage.Text,
		pgvector.NewVector(embedding),
		time.Now().UTC(),
	)
	return err
}

// SearchPassages returns the user's passages nearest to the query
// embedding by cosine distance, best first.
func (s *Store) SearchPassages(ctx context.Context, userID int64, embedding []float32, limit int) ([]domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, querySearchPassages, userID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.ID, &p.UserID, &p.Text, &p.Score); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var event domain.Event
	var state string
	var calendarID, calendarURL sql.NullString

	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.Title,
		&event.Span.Start,
		&event.Span.End,
		&event.Span.Timezone,
		&state,
		&event.Advisory,
		&calendarID,
		&calendarURL,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	event.State = domain.EventState(state)
	if calendarID.Valid {
		event.Calendar = &domain.CalendarRef{ID: calendarID.String, URL: calendarURL.String}
	}
	return event, nil
}

func scanPendingReminders(rows *sql.Rows) ([]scheduler.PendingReminder, error) {
	var result []scheduler.PendingReminder
	for rows.Next() {
		var pr scheduler.PendingReminder
		var offsetSec int64
		var state string

		err := rows.Scan(
			&pr.Reminder.ID,
			&pr.Reminder.EventID,
			&pr.Reminder.UserID,
			&offsetSec,
			&pr.Reminder.FireAt,
			&state,
			&pr.Reminder.CreatedAt,
			&pr.Reminder.UpdatedAt,
			&pr.Title,
			&pr.EventStart,
			&pr.Timezone,
		)
		if err != nil {
			return nil, err
		}
		pr.Reminder.Offset = time.Duration(offsetSec) * time.Second
		pr.Reminder.State = domain.ReminderState(state)
		result = append(result, pr)
	}
	return result, rows.Err()
}

// isDuplicateKeyError reports a PostgreSQL unique violation (23505).
func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Compile-time interface assertions
var (
	_ scheduler.Store = (*Store)(nil)
	_ notifier.Store  = (*Store)(nil)
)
