package reconcile

import (
	"context"
	"time"

	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
)

// DefaultSlowBootThreshold and DefaultSlowTermThreshold are the default
// windows after which a stuck instance is given up on.
const (
	DefaultSlowBootThreshold = 60 * time.Second
	DefaultSlowTermThreshold = 20 * time.Second
)

// DefaultTimeoutInterval is how often the timeout handlers sweep.
const DefaultTimeoutInterval = 5 * time.Second

// SlowBootHandler tears down instances that have been running (from the
// store's point of view) without a matching worker-reported running
// container for longer than the slow boot threshold. There is no
// separate "stuck booting" state in this model; giving up on a boot
// means retiring the instance the same way a normal scale-down would.
type SlowBootHandler struct {
	*Runner
	instances *store.InstanceStore
	pool      *workerclient.Pool
	threshold time.Duration
}

// NewSlowBootHandler builds a SlowBootHandler using the default
// threshold and sweep interval.
func NewSlowBootHandler(instances *store.InstanceStore, pool *workerclient.Pool) *SlowBootHandler {
	h := &SlowBootHandler{instances: instances, pool: pool, threshold: DefaultSlowBootThreshold}
	h.Runner = newRunner("slow-boot", DefaultTimeoutInterval, log.WithComponent("slow-boot"), h.sweep)
	return h
}

// WithThreshold overrides the slow-boot threshold. Must be called before
// Start.
func (h *SlowBootHandler) WithThreshold(d time.Duration) *SlowBootHandler {
	h.threshold = d
	return h
}

func (h *SlowBootHandler) sweep(ctx context.Context) error {
	for _, inst := range h.instances.Running() {
		if time.Since(inst.StateSince) < h.threshold {
			continue
		}
		if h.hasConfirmedContainer(inst) {
			continue
		}
		logger := log.WithInstance(inst.Name())
		inst.State = types.StateShuttingDown
		if err := h.instances.Update(ctx, inst); err != nil {
			logger.Error().Err(err).Msg("failed to retire slow-booting instance")
			continue
		}
		logger.Warn().Dur("elapsed", time.Since(inst.StateSince)).Msg("instance never confirmed running, retiring")
	}
	return nil
}

func (h *SlowBootHandler) hasConfirmedContainer(inst *types.Instance) bool {
	client, ok := h.pool.Get(inst.AssignedTo)
	if !ok {
		return false
	}
	ctr, ok := client.Find(inst)
	if !ok {
		return false
	}
	return ctr.State == types.ContainerRunning
}

// SlowTermHandler forces a shutting-down instance straight to
// terminated once it has sat unchanged past the slow term threshold,
// rather than waiting indefinitely on a worker delete that may never
// succeed. The terminator still gets first crack at a clean delete
// every sweep; this only fires once that has had a fair chance to work.
type SlowTermHandler struct {
	*Runner
	instances *store.InstanceStore
	threshold time.Duration
}

// NewSlowTermHandler builds a SlowTermHandler using the default
// threshold and sweep interval.
func NewSlowTermHandler(instances *store.InstanceStore) *SlowTermHandler {
	h := &SlowTermHandler{instances: instances, threshold: DefaultSlowTermThreshold}
	h.Runner = newRunner("slow-term", DefaultTimeoutInterval, log.WithComponent("slow-term"), h.sweep)
	return h
}

// WithThreshold overrides the slow-term threshold. Must be called before
// Start.
func (h *SlowTermHandler) WithThreshold(d time.Duration) *SlowTermHandler {
	h.threshold = d
	return h
}

func (h *SlowTermHandler) sweep(ctx context.Context) error {
	for _, inst := range h.instances.ShuttingDown() {
		if time.Since(inst.StateSince) < h.threshold {
			continue
		}
		logger := log.WithInstance(inst.Name())
		inst.State = types.StateTerminated
		if err := h.instances.Update(ctx, inst); err != nil {
			logger.Error().Err(err).Msg("failed to force-terminate stuck instance")
			continue
		}
		logger.Warn().Dur("elapsed", time.Since(inst.StateSince)).Msg("instance never confirmed deleted, forcing terminated")
	}
	return nil
}

// DefaultRemoveTerminatedInterval is how often terminated instances are
// swept out of the store entirely.
const DefaultRemoveTerminatedInterval = 30 * time.Second

// RemoveTerminatedHandler deletes terminated instances from the store.
// Once an instance reaches terminated there is nothing further to
// reconcile; keeping it around would only grow the store without bound.
type RemoveTerminatedHandler struct {
	*Runner
	instances *store.InstanceStore
}

// NewRemoveTerminatedHandler builds a RemoveTerminatedHandler using the
// default sweep interval.
func NewRemoveTerminatedHandler(instances *store.InstanceStore) *RemoveTerminatedHandler {
	h := &RemoveTerminatedHandler{instances: instances}
	h.Runner = newRunner("remove-terminated", DefaultRemoveTerminatedInterval, log.WithComponent("remove-terminated"), h.sweep)
	return h
}

func (h *RemoveTerminatedHandler) sweep(ctx context.Context) error {
	for _, inst := range h.instances.Terminated() {
		logger := log.WithInstance(inst.Name())
		if err := h.instances.Delete(ctx, inst); err != nil {
			logger.Error().Err(err).Msg("failed to remove terminated instance")
			continue
		}
		logger.Debug().Msg("removed terminated instance from store")
	}
	return nil
}
