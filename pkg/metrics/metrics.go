package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetd_instances_total",
			Help: "Total number of instances by formation and state",
		},
		[]string{"formation", "state"},
	)

	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetd_workers_total",
			Help: "Total number of known workers by liveness",
		},
		[]string{"liveness"}, // alive, problematic
	)

	LeaderGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetd_is_leader",
			Help: "Whether this process currently holds the leader lock (1 = leader, 0 = follower)",
		},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetd_scheduling_latency_seconds",
			Help:    "Time taken to run one placement pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetd_dispatch_latency_seconds",
			Help:    "Time taken to dispatch an instance to its worker",
			Buckets: prometheus.DefBuckets,
		},
	)

	MigrateLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetd_migrate_step_latency_seconds",
			Help:    "Time taken for one migrate() step",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstancesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetd_instances_scheduled_total",
			Help: "Total number of instances successfully placed on a worker",
		},
	)

	InstancesLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetd_instances_lost_total",
			Help: "Total number of instances transitioned to lost",
		},
	)

	DispatchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetd_dispatch_failures_total",
			Help: "Total number of dispatch/restart/delete calls that failed",
		},
		[]string{"op"}, // dispatch, restart, delete
	)

	RateLimiterRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetd_rate_limiter_rejections_total",
			Help: "Total number of operations deferred by a rate limiter",
		},
		[]string{"limiter"}, // scheduler, dispatcher, updater, terminator
	)

	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetd_reconciliation_duration_seconds",
			Help:    "Time taken for one reconciliation loop pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loop"}, // scheduler, dispatcher, updater, terminator, timeout
	)

	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetd_reconciliation_cycles_total",
			Help: "Total number of reconciliation loop passes completed",
		},
		[]string{"loop"},
	)

	ScaleStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetd_scale_steps_total",
			Help: "Total number of scale() steps taken, by direction",
		},
		[]string{"direction"}, // up, down
	)

	MigrateStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetd_migrate_steps_total",
			Help: "Total number of migrate() steps taken, by kind",
		},
		[]string{"kind"}, // re-release, migrate, shutdown
	)
)

func init() {
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(LeaderGauge)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(MigrateLatency)
	prometheus.MustRegister(InstancesScheduled)
	prometheus.MustRegister(InstancesLost)
	prometheus.MustRegister(DispatchFailuresTotal)
	prometheus.MustRegister(RateLimiterRejectionsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ScaleStepsTotal)
	prometheus.MustRegister(MigrateStepsTotal)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
