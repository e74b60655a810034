package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) SchedulerWake(emitted int)                                                 {}
func (n *NoopSink) PendingSetSize(size int)                                                   {}
func (n *NoopSink) ResolutionCompleted(outcome string, duration time.Duration)                {}
func (n *NoopSink) DeliveryAttemptCompleted(attempt int, statusClass string, d time.Duration) {}
func (n *NoopSink) DeliveryOutcome(outcome string)                                            {}
func (n *NoopSink) RemindersInFlightIncr()                                                    {}
func (n *NoopSink) RemindersInFlightDecr()                                                    {}
func (n *NoopSink) AdvisoryCompleted(outcome string, duration time.Duration)                  {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                         {}
func (n *NoopSink) LeaderAcquired()                                                           {}
func (n *NoopSink) LeaderLost(reason string)                                                  {}
