/*
Package controlplane wires the leader lock, the worker pool, the
placement scheduler, every reconciliation loop and the metrics
collector into one supervised process.

	┌───────────────────────── Supervisor ─────────────────────────┐
	│                                                                │
	│   leader.Lock.Acquire  ─── blocks until held ───┐             │
	│                                                  ▼             │
	│           ┌─────────────────────────────────────────────┐     │
	│           │  while leadership held:                     │     │
	│           │    scheduler.Scheduler.Start                 │     │
	│           │    reconcile.Dispatcher/Updater/Terminator   │     │
	│           │    reconcile.SlowBoot/SlowTerm/RemoveTerm    │     │
	│           │    workerclient.Pool.Run                     │     │
	│           │    MetricsCollector.Start                    │     │
	│           └─────────────────────────────────────────────┘     │
	│                                                  │             │
	│                      leadership lost ◄───────────┘             │
	│                  (stop everything, re-acquire)                 │
	└────────────────────────────────────────────────────────────────┘

Every loop started here already fails safe on its own (rate-limited,
level-triggered, logs and continues past a single error); the
supervisor's only job is making sure none of them run without the
leader lock, and that they all stop cleanly together when it's lost or
the process is asked to shut down.
*/
package controlplane
