/*
Package scheduler runs the placement loop: on a fixed interval it reads
every unassigned (state pending) instance from the Instance Store and the
current worker set from the Worker Registry, and for each instance tries
to place it on a worker via pkg/placement's filter-then-rank policy.

	┌─────────────────────────────────────────────┐
	│              Scheduler loop                  │
	│             (every tick, e.g. 3s)            │
	└──────────────────┬────────────────────────────┘
	                   │
	                   ▼
	  for each pending instance (rate-limited):
	    candidates := registry workers + live instance counts
	    worker, ok := policy.Select(candidates)
	    if ok: instance.state = pending-dispatch, assigned_to = worker

If no worker satisfies an instance's placement requirements, it stays
pending and is retried next tick — nothing distinguishes "no capacity
yet" from "no capacity ever" at this layer.

The scheduler holds no state of its own: every decision is rederived
each tick from the instance store and the registry, the same stateless
shape as the container-assignment loop it's descended from.
*/
package scheduler
