package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestSchedulerWake(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.SchedulerWake(3)
	sink.SchedulerWake(0)

	if got := getCounterValue(t, reg, "napomni_scheduler_wakes_total"); got != 2 {
		t.Errorf("wakes_total = %v, want 2", got)
	}
	if got := getCounterValue(t, reg, "napomni_scheduler_reminders_emitted_total"); got != 3 {
		t.Errorf("reminders_emitted_total = %v, want 3", got)
	}
}

func TestPendingSetSize(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.PendingSetSize(17)
	if got := getGaugeValue(t, reg, "napomni_scheduler_pending_reminders"); got != 17 {
		t.Errorf("pending_reminders = %v, want 17", got)
	}

	sink.PendingSetSize(4)
	if got := getGaugeValue(t, reg, "napomni_scheduler_pending_reminders"); got != 4 {
		t.Errorf("pending_reminders = %v, want 4", got)
	}
}

func TestResolutionCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.ResolutionCompleted(ResolutionCreated, 5*time.Millisecond)
	sink.ResolutionCompleted(ResolutionCreated, 7*time.Millisecond)
	sink.ResolutionCompleted(ResolutionUnparsable, 2*time.Millisecond)

	created := getCounterVecValue(t, reg, "napomni_resolution_requests_total",
		map[string]string{"outcome": ResolutionCreated})
	if created != 2 {
		t.Errorf("created resolutions = %v, want 2", created)
	}
	unparsable := getCounterVecValue(t, reg, "napomni_resolution_requests_total",
		map[string]string{"outcome": ResolutionUnparsable})
	if unparsable != 1 {
		t.Errorf("unparsable resolutions = %v, want 1", unparsable)
	}
}

func TestDeliveryAttemptCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DeliveryAttemptCompleted(1, "2xx", 150*time.Millisecond)
	sink.DeliveryAttemptCompleted(2, "5xx", 150*time.Millisecond)

	got := getCounterVecValue(t, reg, "napomni_notifier_delivery_attempts_total",
		map[string]string{"attempt": "1", "status_class": "2xx"})
	if got != 1 {
		t.Errorf("first attempt 2xx = %v, want 1", got)
	}
	got = getCounterVecValue(t, reg, "napomni_notifier_delivery_attempts_total",
		map[string]string{"attempt": "2", "status_class": "5xx"})
	if got != 1 {
		t.Errorf("second attempt 5xx = %v, want 1", got)
	}
}

func TestRemindersInFlight(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RemindersInFlightIncr()
	sink.RemindersInFlightIncr()
	sink.RemindersInFlightDecr()

	if got := getGaugeValue(t, reg, "napomni_notifier_reminders_in_flight"); got != 1 {
		t.Errorf("reminders_in_flight = %v, want 1", got)
	}
}

func TestLeaderMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.LeaderStatusChanged(true)
	sink.LeaderAcquired()
	if got := getGaugeValue(t, reg, "napomni_leader_status"); got != 1 {
		t.Errorf("leader_status = %v, want 1", got)
	}

	sink.LeaderStatusChanged(false)
	sink.LeaderLost("conn_lost")
	if got := getGaugeValue(t, reg, "napomni_leader_status"); got != 0 {
		t.Errorf("leader_status = %v, want 0", got)
	}
	lost := getCounterVecValue(t, reg, "napomni_leader_lost_total",
		map[string]string{"reason": "conn_lost"})
	if lost != 1 {
		t.Errorf("leader_lost conn_lost = %v, want 1", lost)
	}
}

func TestDuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)
	// Second sink against the same registry hits AlreadyRegisteredError
	// for every collector; it must log and keep working.
	sink := NewPrometheusSink(reg)
	sink.SchedulerWake(1)
}

// Verify PrometheusSink implements Sink.
var _ Sink = (*PrometheusSink)(nil)
