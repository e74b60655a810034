package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Scheduler metrics
	SchedulerWake(emitted int)
	PendingSetSize(n int)

	// Resolution pipeline metrics
	ResolutionCompleted(outcome string, duration time.Duration)

	// Notifier metrics
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RemindersInFlightIncr()
	RemindersInFlightDecr()

	// Advisory metrics
	AdvisoryCompleted(outcome string, duration time.Duration)

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Outcome constants for ResolutionCompleted.
const (
	ResolutionCreated    = "created"
	ResolutionUnparsable = "unparsable"
	ResolutionAmbiguous  = "ambiguous"
	ResolutionRejected   = "rejected"
	ResolutionError      = "error"
)

// Outcome constants for DeliveryOutcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Outcome constants for AdvisoryCompleted.
const (
	AdvisoryAttached = "attached"
	AdvisorySkipped  = "skipped"
	AdvisoryTimeout  = "timeout"
	AdvisoryError    = "error"
)
