// Package metrics collects the Prometheus series fleetd exposes on
// /metrics, plus the /health, /ready and /live endpoints the control
// plane's own process health is reported on.
//
// # Series
//
// Instance and worker counts are gauges, rebuilt from scratch on every
// collection pass by controlplane.MetricsCollector rather than
// incremented/decremented inline as instances change state — a full
// rebuild can't drift out of sync with the store the way bookkeeping
// counters can.
//
//	fleetd_instances_total{formation,state}        instances by formation and state
//	fleetd_workers_total{liveness}                 workers by alive/problematic
//	fleetd_is_leader                               1 while this process holds the leader lock
//
// Everything else is either a histogram timed around one operation or
// a counter incremented at the point of the event:
//
//	fleetd_scheduling_latency_seconds               one placement pass
//	fleetd_dispatch_latency_seconds                 one instance dispatched to a worker
//	fleetd_migrate_step_latency_seconds             one migrate() step
//	fleetd_instances_scheduled_total                instances placed on a worker
//	fleetd_instances_lost_total                     instances transitioned to lost
//	fleetd_dispatch_failures_total{op}               failed dispatch/restart/delete calls
//	fleetd_rate_limiter_rejections_total{limiter}    operations deferred by a rate limiter
//	fleetd_reconciliation_duration_seconds{loop}     one reconciliation loop pass
//	fleetd_reconciliation_cycles_total{loop}         reconciliation loop passes completed
//	fleetd_scale_steps_total{direction}              scale() steps, up or down
//	fleetd_migrate_steps_total{kind}                 migrate() steps, by kind
//
// # Timing
//
// Timer wraps time.Now and is handed to the call site that knows which
// histogram (and, for the vec variants, which label) the measurement
// belongs to:
//
//	timer := metrics.NewTimer()
//	// ... do the work ...
//	timer.ObserveDuration(metrics.SchedulingLatency)
//
// # Health
//
// Health answers a different question than the series above: not how
// much, but whether this process is still doing its job. Components
// register themselves once at startup and push updates as their state
// changes:
//
//	metrics.RegisterComponent("kv", true, "opened")
//	metrics.UpdateComponent("leader", true, "held")
//
// HealthHandler reports every component; ReadyHandler and
// LivenessHandler report coarser pass/fail views suited to a
// container orchestrator's own probes.
package metrics
