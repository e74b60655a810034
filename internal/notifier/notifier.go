// Package notifier delivers due reminders to the user's notification
// endpoint with bounded retries.
//
// Delivery is at-least-once. A reminder that exhausts its retries is still
// marked fired: a missed notification must never keep the reminder in the
// live set and build a backlog behind it.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
)

var defaultBackoff = []time.Duration{
	0,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

const maxAttempts = 4

type Store interface {
	GetUserSettings(ctx context.Context, userID int64) (domain.UserSettings, error)
	InsertDeliveryAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error
	// MarkReminderFired transitions a reminder to fired. Implementations
	// MUST reject transitions from terminal states (fired/cancelled) with
	// domain.ErrStateTransitionDenied so replays stay idempotent.
	MarkReminderFired(ctx context.Context, reminderID uuid.UUID, at time.Time) error
}

type NotificationSender interface {
	Send(ctx context.Context, req NotificationRequest) NotificationResult
}

// TargetBreaker gates deliveries per endpoint. Optional; nil means every
// attempt is allowed.
type TargetBreaker interface {
	Allow(target string) bool
	ReportSuccess(target string)
	ReportFailure(target string)
}

type AnalyticsSink interface {
	Record(ctx context.Context, due domain.ReminderDue)
}

// MetricsSink records notifier metrics. All methods must be non-blocking.
type MetricsSink interface {
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RemindersInFlightIncr()
	RemindersInFlightDecr()
}

type NotificationRequest struct {
	URL       string
	Secret    string
	Timeout   time.Duration
	Payload   NotificationPayload
	AttemptID string
}

type NotificationPayload struct {
	ReminderID     string `json:"reminder_id"`
	EventID        string `json:"event_id"`
	UserID         int64  `json:"user_id"`
	Title          string `json:"title"`
	Text           string `json:"text"`
	EventStart     string `json:"event_start"`
	Timezone       string `json:"timezone"`
	FireAt         string `json:"fire_at"`
	IdempotencyKey string `json:"idempotency_key"`
}

type NotificationResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r NotificationResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r NotificationResult) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

// Endpoint is where a user's notifications go. A single deployment serves
// one delivery surface (the bot gateway), so the endpoint is fixed at
// construction rather than stored per user.
type Endpoint struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

type Notifier struct {
	store     Store
	sender    NotificationSender
	endpoint  Endpoint
	breaker   TargetBreaker // optional, nil = disabled
	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled
	backoff   []time.Duration
	clock     func() time.Time

	drainTimeout time.Duration
}

func New(store Store, sender NotificationSender, endpoint Endpoint) *Notifier {
	return &Notifier{
		store:        store,
		sender:       sender,
		endpoint:     endpoint,
		backoff:      defaultBackoff,
		clock:        time.Now,
		drainTimeout: DefaultDrainTimeout,
	}
}

// WithDrainTimeout bounds how long shutdown spends on buffered reminders.
func (n *Notifier) WithDrainTimeout(d time.Duration) *Notifier {
	if d > 0 {
		n.drainTimeout = d
	}
	return n
}

func (n *Notifier) WithBreaker(b TargetBreaker) *Notifier {
	n.breaker = b
	return n
}

func (n *Notifier) WithAnalytics(sink AnalyticsSink) *Notifier {
	n.analytics = sink
	return n
}

func (n *Notifier) WithMetrics(sink MetricsSink) *Notifier {
	n.metrics = sink
	return n
}

// Run processes due reminders from the channel until context is cancelled,
// then drains the remaining buffer with a timeout.
func (n *Notifier) Run(ctx context.Context, ch <-chan domain.ReminderDue) {
	for {
		select {
		case <-ctx.Done():
			n.drain(ch)
			return
		case due := <-ch:
			if err := n.Deliver(ctx, due); err != nil {
				log.Printf("notifier: error: %v", err)
			}
		}
	}
}

// DefaultDrainTimeout is the maximum time to spend on buffered reminders
// during shutdown.
const DefaultDrainTimeout = 30 * time.Second

func (n *Notifier) drain(ch <-chan domain.ReminderDue) {
	drainCtx, cancel := context.WithTimeout(context.Background(), n.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("notifier: drain timeout, processed %d reminders", count)
			}
			return
		case due, ok := <-ch:
			if !ok {
				log.Printf("notifier: drain complete, processed %d reminders", count)
				return
			}
			if err := n.Deliver(drainCtx, due); err != nil {
				log.Printf("notifier: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("notifier: drain complete, processed %d reminders", count)
			}
			return
		}
	}
}

// Deliver sends one due reminder, retrying transient failures, and always
// settles the reminder's state before returning.
func (n *Notifier) Deliver(ctx context.Context, due domain.ReminderDue) error {
	if n.metrics != nil {
		n.metrics.RemindersInFlightIncr()
		defer n.metrics.RemindersInFlightDecr()
	}

	settings, err := n.store.GetUserSettings(ctx, due.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get user settings: %w", err)
	}

	// Counts due reminders, not successful deliveries.
	if n.analytics != nil {
		n.analytics.Record(ctx, due)
	}

	if err == nil && !settings.RemindersEnabled {
		log.Printf("notifier: user=%d reminders muted, settling reminder=%s", due.UserID, due.ReminderID)
		return n.markFired(ctx, due)
	}

	req := NotificationRequest{
		URL:     n.endpoint.URL,
		Secret:  n.endpoint.Secret,
		Timeout: n.endpoint.Timeout,
		Payload: NotificationPayload{
			ReminderID:     due.ReminderID.String(),
			EventID:        due.EventID.String(),
			UserID:         due.UserID,
			Title:          due.Title,
			Text:           MessageText(due),
			EventStart:     due.EventStart.UTC().Format(time.RFC3339),
			Timezone:       due.Timezone,
			FireAt:         due.FireAt.UTC().Format(time.RFC3339),
			IdempotencyKey: due.IdempotencyKey,
		},
	}

	var lastResult NotificationResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			idx := attempt - 1
			if idx >= len(n.backoff) {
				idx = len(n.backoff) - 1
			}
			backoff := n.backoff[idx]

			log.Printf("notifier: reminder=%s attempt=%d backoff=%s", due.ReminderID, attempt, backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		if n.breaker != nil && !n.breaker.Allow(req.URL) {
			lastResult = NotificationResult{Error: errors.New("delivery target circuit open")}
			log.Printf("notifier: reminder=%s attempt=%d circuit open", due.ReminderID, attempt)
			continue
		}

		attemptID := uuid.New()
		req.AttemptID = attemptID.String()

		startedAt := n.clock().UTC()
		result := n.sender.Send(ctx, req)
		finishedAt := n.clock().UTC()
		lastResult = result

		if n.breaker != nil {
			if result.IsSuccess() {
				n.breaker.ReportSuccess(req.URL)
			} else {
				n.breaker.ReportFailure(req.URL)
			}
		}

		if n.metrics != nil {
			statusClass := classifyStatus(result.StatusCode, result.Error)
			n.metrics.DeliveryAttemptCompleted(attempt, statusClass, result.Duration)
		}

		record := domain.DeliveryAttempt{
			ID:         attemptID,
			ReminderID: due.ReminderID,
			Attempt:    attempt,
			StatusCode: result.StatusCode,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
		}
		if result.Error != nil {
			record.Error = result.Error.Error()
		}
		if err := n.store.InsertDeliveryAttempt(ctx, record); err != nil {
			log.Printf("notifier: failed to record attempt: %v", err)
		}

		if result.IsSuccess() {
			log.Printf("notifier: reminder=%s delivered attempt=%d", due.ReminderID, attempt)
			if n.metrics != nil {
				n.metrics.DeliveryOutcome("success")
			}
			return n.markFired(ctx, due)
		}

		if !result.IsRetryable() {
			log.Printf("notifier: reminder=%s non-retryable status=%d", due.ReminderID, result.StatusCode)
			break
		}

		log.Printf("notifier: reminder=%s attempt=%d failed status=%d err=%v",
			due.ReminderID, attempt, result.StatusCode, result.Error)
	}

	log.Printf("notifier: reminder=%s delivery failed status=%d err=%v",
		due.ReminderID, lastResult.StatusCode, lastResult.Error)
	if n.metrics != nil {
		n.metrics.DeliveryOutcome("failed")
	}
	// Settle anyway: an undeliverable reminder must not stay due forever.
	return n.markFired(ctx, due)
}

func (n *Notifier) markFired(ctx context.Context, due domain.ReminderDue) error {
	err := n.store.MarkReminderFired(ctx, due.ReminderID, n.clock().UTC())
	if errors.Is(err, domain.ErrStateTransitionDenied) {
		// Already settled elsewhere, likely a replay.
		log.Printf("notifier: reminder=%s already terminal, skipping state update", due.ReminderID)
		return nil
	}
	return err
}

// MessageText renders the notification body in the user's timezone.
func MessageText(due domain.ReminderDue) string {
	loc, err := time.LoadLocation(due.Timezone)
	if err != nil {
		loc = time.UTC
	}
	start := due.EventStart.In(loc)
	if due.Offset <= 0 {
		return fmt.Sprintf("Напоминание: %s в %s", due.Title, start.Format("15:04"))
	}
	return fmt.Sprintf("Напоминание: %s в %s (через %s)", due.Title, start.Format("15:04"), formatOffset(due.Offset))
}

func formatOffset(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dч %dм", h, m)
	case h > 0:
		return fmt.Sprintf("%dч", h)
	default:
		return fmt.Sprintf("%dм", m)
	}
}

// classifyStatus maps a delivery outcome to a bounded-cardinality metrics
// label: 2xx, 4xx, 5xx, timeout, connection_error, other_error.
func classifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return "timeout"
		}
		if strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") ||
			strings.Contains(msg, "dial") {
			return "connection_error"
		}
		return "other_error"
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}
