package circuitbreaker

import (
	"testing"
	"time"
)

const gateway = "https://gateway.example/notify"

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	b := New(threshold, cooldown)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	b.clock = func() time.Time { return now }
	return b, &now
}

func TestAllow_UnknownTarget(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Second)
	if !b.Allow(gateway) {
		t.Fatal("unknown target must be allowed")
	}
}

func TestAllow_BelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Second)
	b.ReportFailure(gateway)
	b.ReportFailure(gateway)
	if !b.Allow(gateway) {
		t.Fatal("target below threshold must be allowed")
	}
}

func TestAllow_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Second)
	for i := 0; i < 3; i++ {
		b.ReportFailure(gateway)
	}
	if b.Allow(gateway) {
		t.Fatal("target at threshold must be blocked")
	}
}

func TestAllow_HalfOpenProbeAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(3, 5*time.Second)
	for i := 0; i < 3; i++ {
		b.ReportFailure(gateway)
	}

	*now = now.Add(6 * time.Second)

	if !b.Allow(gateway) {
		t.Fatal("probe after cooldown must be allowed")
	}
	if b.Allow(gateway) {
		t.Fatal("second request must be blocked while probe is in flight")
	}
}

func TestReportSuccess_ClosesCircuit(t *testing.T) {
	b, now := newTestBreaker(3, 5*time.Second)
	for i := 0; i < 3; i++ {
		b.ReportFailure(gateway)
	}
	*now = now.Add(6 * time.Second)
	b.Allow(gateway)
	b.ReportSuccess(gateway)

	if !b.Allow(gateway) {
		t.Fatal("circuit must close after successful probe")
	}
}

func TestReportFailure_ReopensFromHalfOpen(t *testing.T) {
	b, now := newTestBreaker(3, 5*time.Second)
	for i := 0; i < 3; i++ {
		b.ReportFailure(gateway)
	}
	*now = now.Add(6 * time.Second)
	b.Allow(gateway)
	b.ReportFailure(gateway)

	if b.Allow(gateway) {
		t.Fatal("circuit must reopen after failed probe")
	}
}

func TestIndependentTargets(t *testing.T) {
	b, _ := newTestBreaker(2, 5*time.Second)
	other := "https://fallback.example/notify"

	b.ReportFailure(gateway)
	b.ReportFailure(gateway)

	if b.Allow(gateway) {
		t.Fatal("failing target must be blocked")
	}
	if !b.Allow(other) {
		t.Fatal("healthy target must stay allowed")
	}
}
