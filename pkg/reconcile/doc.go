/*
Package reconcile drives observed worker state toward the Instance
Store's declared state. Rather than one combined reconciliation cycle,
the work is split into one independent loop per concern — Dispatcher,
Updater, Terminator, plus three timeout handlers — each on its own
ticker, because each reads and writes a disjoint slice of instance
state and none needs to see the others' work in the same pass:

	Dispatcher:         pending-dispatch -> running   (dispatch to worker)
	Updater:            running, spec drifted -> restart (in-place update)
	Terminator:         shutting-down -> terminated   (delete from worker)
	slow-boot:          running with no confirmed container -> shutting-down
	slow-term:          shutting-down, stuck past threshold -> terminated
	remove-terminated:  terminated -> removed from the store

There is no separate aborted state here: giving up on a stuck boot
retires the instance through the same shutting-down path a normal
scale-down uses, and giving up on a stuck termination forces it
straight to terminated rather than waiting on a worker delete that may
never arrive.

Every loop is level-triggered: it re-derives what needs doing from the
current instance store and worker pool snapshot on each tick rather than
reacting to the event that caused the drift, so a missed tick is simply
caught on the next one. None of these loops run unless the process
holds the leader lock; losing leadership mid-cycle is not special-cased
here, the supervisor simply stops the loops (Runner.Stop).
*/
package reconcile
