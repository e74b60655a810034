package postgres

const queryInsertEvent = `
INSERT INTO events (id, user_id, title, start_at, end_at, timezone, state, advisory, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const queryInsertReminder = `
INSERT INTO reminders (id, event_id, user_id, offset_seconds, fire_at, state, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryGetEventByID = `
SELECT id, user_id, title, start_at, end_at, timezone, state, advisory,
       calendar_id, calendar_url, created_at, updated_at
FROM events
WHERE id = $1
`

const queryListUserEvents = `
SELECT id, user_id, title, start_at, end_at, timezone, state, advisory,
       calendar_id, calendar_url, created_at, updated_at
FROM events
WHERE user_id = $1
  AND end_at >= $2
  AND state <> 'cancelled'
ORDER BY start_at ASC
LIMIT $3 OFFSET $4
`

const queryGetEventReminders = `
SELECT id, event_id, user_id, offset_seconds, fire_at, state, created_at, updated_at
FROM reminders
WHERE event_id = $1
ORDER BY fire_at ASC
`

const queryCancelEvent = `
UPDATE events
SET state = 'cancelled', updated_at = $3
WHERE id = $1
  AND user_id = $2
  AND state <> 'cancelled'
`

const queryGetEventState = `
SELECT state FROM events WHERE id = $1 AND user_id = $2
`

const queryCancelEventReminders = `
UPDATE reminders
SET state = 'cancelled', updated_at = $2
WHERE event_id = $1
  AND state NOT IN ('fired', 'cancelled')
`

const queryUpdateEventSpan = `
UPDATE events
SET title = $3, start_at = $4, end_at = $5, timezone = $6, updated_at = $7
WHERE id = $1
  AND user_id = $2
  AND state NOT IN ('completed', 'cancelled')
`

const queryListUnfiredReminders = `
SELECT r.id, r.event_id, r.user_id, r.offset_seconds, r.fire_at, r.state,
       r.created_at, r.updated_at,
       e.title, e.start_at, e.timezone
FROM reminders r
JOIN events e ON r.event_id = e.id
WHERE r.state IN ('pending', 'due')
  AND e.state NOT IN ('completed', 'cancelled')
ORDER BY r.fire_at ASC
`

const queryMarkReminderDue = `
UPDATE reminders
SET state = 'due', updated_at = $2
WHERE id = $1
  AND state NOT IN ('fired', 'cancelled')
`

const queryMarkReminderFired = `
UPDATE reminders
SET state = 'fired', updated_at = $2
WHERE id = $1
  AND state NOT IN ('fired', 'cancelled')
`

const queryGetReminderState = `
SELECT state FROM reminders WHERE id = $1
`

const queryInsertDeliveryAttempt = `
INSERT INTO delivery_attempts (id, reminder_id, attempt, status_code, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryGetStuckDueReminders = `
SELECT r.id, r.event_id, r.user_id, r.offset_seconds, r.fire_at, r.state,
       r.created_at, r.updated_at,
       e.title, e.start_at, e.timezone
FROM reminders r
JOIN events e ON r.event_id = e.id
WHERE r.state = 'due'
  AND r.updated_at < $1
ORDER BY r.updated_at ASC
LIMIT $2
`

const queryGetUserSettings = `
SELECT user_id, timezone, default_offsets_seconds, reminders_enabled, created_at, updated_at
FROM user_settings
WHERE user_id = $1
`

const queryInsertUserSettings = `
INSERT INTO user_settings (user_id, timezone, default_offsets_seconds, reminders_enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO NOTHING
`

const queryUpdateUserSettings = `
UPDATE user_settings
SET timezone = $2, default_offsets_seconds = $3, reminders_enabled = $4, updated_at = $5
WHERE user_id = $1
`

const queryUpdateEventAdvisory = `
UPDATE events
SET advisory = $2, updated_at = $3
WHERE id = $1
  AND state NOT IN ('completed', 'cancelled')
`

const querySetEventCalendarRef = `
UPDATE events
SET calendar_id = $2, calendar_url = $3, updated_at = $4
WHERE id = $1
`

const querySweepActivateEvents = `
UPDATE events
SET state = 'active', updated_at = $1
WHERE state = 'scheduled'
  AND start_at <= $1
`

const querySweepCompleteEvents = `
UPDATE events
SET state = 'completed', updated_at = $1
WHERE state = 'active'
  AND end_at <= $1
`

const queryInsertPassage = `
INSERT INTO passages (id, user_id, text, embedding, created_at)
VALUES ($1, $2, $3, $4, $5)
`

const querySearchPassages = `
SELECT id, user_id, text, 1 - (embedding <=> $2) AS score
FROM passages
WHERE user_id = $1
ORDER BY embedding <=> $2
LIMIT $3
`
