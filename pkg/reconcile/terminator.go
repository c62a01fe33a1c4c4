package reconcile

import (
	"context"
	"time"

	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/ratelimit"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
	"github.com/rs/zerolog"
)

// DefaultTerminateInterval is how often the terminator sweeps
// shutting-down instances.
const DefaultTerminateInterval = 2 * time.Second

// DefaultTerminateRateLimit and DefaultTerminateRateWindow bound how
// many deletes are issued: 10 per 30 seconds by default, shared across
// sweeps.
const (
	DefaultTerminateRateLimit  = 10
	DefaultTerminateRateWindow = 30 * time.Second
)

// Terminator deletes the worker-side container for every shutting-down
// instance and, once the delete succeeds (or the container is already
// gone), flips the instance to terminated.
type Terminator struct {
	*Runner
	instances *store.InstanceStore
	pool      *workerclient.Pool
	limiter   *ratelimit.Limiter
}

// NewTerminator builds a Terminator over the given instance store and
// worker pool, using the default interval and rate limit.
func NewTerminator(instances *store.InstanceStore, pool *workerclient.Pool) *Terminator {
	t := &Terminator{
		instances: instances,
		pool:      pool,
		limiter:   ratelimit.New(DefaultTerminateRateLimit, DefaultTerminateRateWindow),
	}
	t.Runner = newRunner("terminator", DefaultTerminateInterval, log.WithComponent("terminator"), t.sweep)
	return t
}

func (t *Terminator) sweep(ctx context.Context) error {
	for _, inst := range t.instances.ShuttingDown() {
		if !t.limiter.Check() {
			return nil
		}
		t.terminateOne(ctx, inst)
	}
	return nil
}

func (t *Terminator) terminateOne(ctx context.Context, inst *types.Instance) {
	logger := log.WithInstance(inst.Name())

	client, ok := t.pool.Get(inst.AssignedTo)
	if !ok {
		// Worker is gone; nothing left to delete, finish the transition.
		t.finish(ctx, inst, logger)
		return
	}

	ctr, found := client.Find(inst)
	if !found {
		t.finish(ctx, inst, logger)
		return
	}

	if err := client.Delete(ctx, ctr.ID); err != nil {
		logger.Error().Err(err).Str("worker", inst.AssignedTo).Msg("delete failed, queued for retry")
		return
	}
	t.finish(ctx, inst, logger)
}

func (t *Terminator) finish(ctx context.Context, inst *types.Instance, logger zerolog.Logger) {
	inst.State = types.StateTerminated
	if err := t.instances.Update(ctx, inst); err != nil {
		logger.Error().Err(err).Msg("terminated on worker but failed to persist state")
		return
	}
	logger.Info().Msg("terminated instance")
}
