package metrics

import (
	"testing"
	"time"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// Verify that calling all methods on NoopSink does not panic.
	s := NewNoopSink()

	s.SchedulerWake(5)
	s.PendingSetSize(10)

	s.ResolutionCompleted(ResolutionCreated, time.Millisecond)
	s.ResolutionCompleted(ResolutionUnparsable, time.Millisecond)

	s.DeliveryAttemptCompleted(1, "2xx", 200*time.Millisecond)
	s.DeliveryOutcome(OutcomeSuccess)
	s.DeliveryOutcome(OutcomeFailed)
	s.RemindersInFlightIncr()
	s.RemindersInFlightDecr()

	s.AdvisoryCompleted(AdvisoryAttached, time.Second)
	s.AdvisoryCompleted(AdvisoryTimeout, time.Second)

	s.LeaderStatusChanged(true)
	s.LeaderAcquired()
	s.LeaderLost("shutdown")
}

// Verify NoopSink implements Sink interface.
var _ Sink = (*NoopSink)(nil)
