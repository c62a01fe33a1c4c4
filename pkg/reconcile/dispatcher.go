package reconcile

import (
	"context"
	"time"

	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/ratelimit"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
)

// DefaultDispatchInterval is how often the dispatcher sweeps for
// pending-dispatch instances.
const DefaultDispatchInterval = 2 * time.Second

// DefaultDispatchRateLimit and DefaultDispatchRateWindow bound how many
// instances are dispatched: 10 per 30 seconds by default, shared across
// sweeps.
const (
	DefaultDispatchRateLimit  = 10
	DefaultDispatchRateWindow = 30 * time.Second
)

// Dispatcher pushes pending-dispatch instances out to the worker they
// were assigned to, flipping them to running on success. Dispatch
// failures are left alone; the instance stays pending-dispatch and is
// retried on the next sweep.
type Dispatcher struct {
	*Runner
	instances *store.InstanceStore
	pool      *workerclient.Pool
	limiter   *ratelimit.Limiter
}

// NewDispatcher builds a Dispatcher over the given instance store and
// worker pool, using the default interval and rate limit.
func NewDispatcher(instances *store.InstanceStore, pool *workerclient.Pool) *Dispatcher {
	d := &Dispatcher{
		instances: instances,
		pool:      pool,
		limiter:   ratelimit.New(DefaultDispatchRateLimit, DefaultDispatchRateWindow),
	}
	d.Runner = newRunner("dispatcher", DefaultDispatchInterval, log.WithComponent("dispatcher"), d.sweep)
	return d
}

func (d *Dispatcher) sweep(ctx context.Context) error {
	for _, inst := range d.instances.PendingDispatch() {
		if !d.limiter.Check() {
			return nil
		}
		d.dispatchOne(ctx, inst)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, inst *types.Instance) {
	logger := log.WithInstance(inst.Name())

	client, ok := d.pool.Get(inst.AssignedTo)
	if !ok {
		logger.Warn().Str("worker", inst.AssignedTo).Msg("assigned worker unknown to pool, retrying next sweep")
		return
	}

	if _, err := client.Dispatch(ctx, inst); err != nil {
		logger.Error().Err(err).Str("worker", inst.AssignedTo).Msg("dispatch failed, leaving pending-dispatch")
		return
	}

	inst.State = types.StateRunning
	if err := d.instances.Update(ctx, inst); err != nil {
		logger.Error().Err(err).Msg("dispatched but failed to persist running state")
		return
	}
	logger.Info().Str("worker", inst.AssignedTo).Msg("dispatched instance")
}
