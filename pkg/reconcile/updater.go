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

// DefaultUpdateInterval is how often the updater sweeps running
// instances for spec drift.
const DefaultUpdateInterval = 5 * time.Second

// DefaultUpdateRateLimit and DefaultUpdateRateWindow bound how many
// restarts are issued: 5 per 30 seconds by default, shared across sweeps.
const (
	DefaultUpdateRateLimit  = 5
	DefaultUpdateRateWindow = 30 * time.Second
)

// Updater detects running instances whose frozen image or command no
// longer match the container a worker reports for them, and restarts
// those containers in place. Env is not compared: the worker-reported
// Container carries no env, so a change to env alone triggers no
// restart. It never changes an instance's state;
// drift is purely a worker-side concern here.
type Updater struct {
	*Runner
	instances *store.InstanceStore
	pool      *workerclient.Pool
	limiter   *ratelimit.Limiter
}

// NewUpdater builds an Updater over the given instance store and
// worker pool, using the default interval and rate limit.
func NewUpdater(instances *store.InstanceStore, pool *workerclient.Pool) *Updater {
	u := &Updater{
		instances: instances,
		pool:      pool,
		limiter:   ratelimit.New(DefaultUpdateRateLimit, DefaultUpdateRateWindow),
	}
	u.Runner = newRunner("updater", DefaultUpdateInterval, log.WithComponent("updater"), u.sweep)
	return u
}

func (u *Updater) sweep(ctx context.Context) error {
	for _, inst := range u.instances.Running() {
		if !u.limiter.Check() {
			return nil
		}
		u.updateOne(ctx, inst)
	}
	return nil
}

func (u *Updater) updateOne(ctx context.Context, inst *types.Instance) {
	logger := log.WithInstance(inst.Name())

	client, ok := u.pool.Get(inst.AssignedTo)
	if !ok {
		return
	}

	ctr, ok := client.Find(inst)
	if !ok {
		return // dispatcher or timeout handlers will deal with a missing container
	}
	if containerMatches(ctr, inst) {
		return
	}

	if _, err := client.Restart(ctx, ctr.ID, inst); err != nil {
		logger.Error().Err(err).Str("worker", inst.AssignedTo).Msg("restart failed, retrying next sweep")
	}
}

func containerMatches(ctr *types.Container, inst *types.Instance) bool {
	return ctr.Image == inst.Image && ctr.Command == inst.Command
}
