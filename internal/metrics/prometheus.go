package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	wakesTotal            prometheus.Counter
	remindersEmittedTotal prometheus.Counter
	pendingSetSize        prometheus.Gauge

	// Resolution metrics
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration prometheus.Histogram

	// Notifier metrics
	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	deliveryDuration      prometheus.Histogram
	remindersInFlight     prometheus.Gauge

	// Advisory metrics
	advisoryTotal    *prometheus.CounterVec
	advisoryDuration prometheus.Histogram

	// Leader election metrics
	leaderStatus        prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates a Prometheus metrics sink. Metrics that fail
// to register keep working as unexported collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initResolutionMetrics(reg)
	s.initNotifierMetrics(reg)
	s.initAdvisoryMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.wakesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "napomni_scheduler_wakes_total",
		Help: "Total number of scheduler wakes.",
	})
	s.remindersEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "napomni_scheduler_reminders_emitted_total",
		Help: "Total number of due reminders emitted to the bus.",
	})
	s.pendingSetSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "napomni_scheduler_pending_reminders",
		Help: "Number of reminders currently in the pending set.",
	})

	s.register(reg, s.wakesTotal, "napomni_scheduler_wakes_total")
	s.register(reg, s.remindersEmittedTotal, "napomni_scheduler_reminders_emitted_total")
	s.register(reg, s.pendingSetSize, "napomni_scheduler_pending_reminders")
}

func (s *PrometheusSink) initResolutionMetrics(reg prometheus.Registerer) {
	s.resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "napomni_resolution_requests_total",
		Help: "Total number of utterance resolution requests by outcome.",
	}, []string{"outcome"})

	s.resolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "napomni_resolution_duration_seconds",
		Help:    "End-to-end resolution latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	s.register(reg, s.resolutionsTotal, "napomni_resolution_requests_total")
	s.register(reg, s.resolutionDuration, "napomni_resolution_duration_seconds")
}

func (s *PrometheusSink) initNotifierMetrics(reg prometheus.Registerer) {
	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "napomni_notifier_delivery_attempts_total",
		Help: "Total number of notification delivery attempts.",
	}, []string{"attempt", "status_class"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "napomni_notifier_delivery_outcomes_total",
		Help: "Total number of final delivery outcomes per reminder.",
	}, []string{"outcome"})

	s.deliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "napomni_notifier_delivery_duration_seconds",
		Help:    "Notification request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.remindersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "napomni_notifier_reminders_in_flight",
		Help: "Number of due reminders currently being delivered.",
	})

	s.register(reg, s.deliveryAttemptsTotal, "napomni_notifier_delivery_attempts_total")
	s.register(reg, s.deliveryOutcomesTotal, "napomni_notifier_delivery_outcomes_total")
	s.register(reg, s.deliveryDuration, "napomni_notifier_delivery_duration_seconds")
	s.register(reg, s.remindersInFlight, "napomni_notifier_reminders_in_flight")
}

func (s *PrometheusSink) initAdvisoryMetrics(reg prometheus.Registerer) {
	s.advisoryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "napomni_advisory_requests_total",
		Help: "Total number of advisory augmentation runs by outcome.",
	}, []string{"outcome"})

	s.advisoryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "napomni_advisory_duration_seconds",
		Help:    "Advisory generation latency in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	})

	s.register(reg, s.advisoryTotal, "napomni_advisory_requests_total")
	s.register(reg, s.advisoryDuration, "napomni_advisory_duration_seconds")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "napomni_leader_status",
		Help: "1 when this instance is the leader, 0 otherwise.",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "napomni_leader_acquired_total",
		Help: "Total number of leadership acquisitions.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "napomni_leader_lost_total",
		Help: "Total number of leadership losses by reason.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "napomni_leader_status")
	s.register(reg, s.leaderAcquiredTotal, "napomni_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "napomni_leader_lost_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) SchedulerWake(emitted int) {
	s.wakesTotal.Inc()
	s.remindersEmittedTotal.Add(float64(emitted))
}

func (s *PrometheusSink) PendingSetSize(n int) {
	s.pendingSetSize.Set(float64(n))
}

// Resolution metrics implementation

func (s *PrometheusSink) ResolutionCompleted(outcome string, duration time.Duration) {
	s.resolutionsTotal.WithLabelValues(outcome).Inc()
	s.resolutionDuration.Observe(duration.Seconds())
}

// Notifier metrics implementation

func (s *PrometheusSink) DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.deliveryDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RemindersInFlightIncr() {
	s.remindersInFlight.Inc()
}

func (s *PrometheusSink) RemindersInFlightDecr() {
	s.remindersInFlight.Dec()
}

// Advisory metrics implementation

func (s *PrometheusSink) AdvisoryCompleted(outcome string, duration time.Duration) {
	s.advisoryTotal.WithLabelValues(outcome).Inc()
	s.advisoryDuration.Observe(duration.Seconds())
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
