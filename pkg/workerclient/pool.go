package workerclient

import (
	"context"
	"sync"
	"time"

	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often a pool polls every client's worker
// for its container list, absent an explicit CHECK_INTERVAL override.
const DefaultPollInterval = 3 * time.Second

// OrphanPolicy controls how a reconciliation pass handles a container the
// worker reports that does not correlate to any known instance.
type OrphanPolicy int

const (
	// OrphanIgnore leaves the container alone: neither adopted nor
	// deleted. This is the default, matching the absence of a firm
	// decision on orphan handling.
	OrphanIgnore OrphanPolicy = iota
	// OrphanAdopt creates a terminated-release instance record for the
	// orphan so it becomes visible to operators and subject to normal
	// teardown.
	OrphanAdopt
	// OrphanDelete issues an immediate delete for the orphan container.
	OrphanDelete
)

// Pool owns one Client per known worker and runs each on its own poll
// loop. It is the reconciliation-pass counterpart to the instance store's
// watch loop: the instance store owns desired state, the pool owns
// observed state, and the reconcile loops read both.
type Pool struct {
	formation string
	instances *store.InstanceStore
	orphans   OrphanPolicy
	interval  time.Duration
	log       zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewPool builds an empty pool; workers are added as the registry reports
// them via Sync.
func NewPool(formation string, instances *store.InstanceStore, orphans OrphanPolicy, interval time.Duration, logger zerolog.Logger) *Pool {
	return &Pool{
		formation: formation,
		instances: instances,
		orphans:   orphans,
		interval:  interval,
		log:       logger,
		clients:   make(map[string]*Client),
	}
}

// Sync adds clients for newly seen workers and drops clients for workers
// no longer in the registry's view. It does not stop in-flight polls for
// dropped workers; callers only call Sync from the registry's add/remove
// callback, which already serializes membership changes.
func (p *Pool) Sync(workers []types.Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]struct{}, len(workers))
	for _, w := range workers {
		seen[w.ID] = struct{}{}
		if _, ok := p.clients[w.ID]; !ok {
			p.clients[w.ID] = New(w, p.formation, p.log)
		}
	}
	for id := range p.clients {
		if _, ok := seen[id]; !ok {
			delete(p.clients, id)
		}
	}
}

// Get returns the client for a worker, if known.
func (p *Pool) Get(workerID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[workerID]
	return c, ok
}

// All returns a snapshot of every known client.
func (p *Pool) All() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	return out
}

// Run polls every known worker on the configured interval until ctx is
// canceled. Each worker is polled from its own goroutine so one slow or
// unreachable worker cannot stall the rest.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var wg sync.WaitGroup
			for _, c := range p.All() {
				wg.Add(1)
				go func(c *Client) {
					defer wg.Done()
					p.pollOne(ctx, c)
				}(c)
			}
			wg.Wait()
		}
	}
}

func (p *Pool) pollOne(ctx context.Context, c *Client) {
	err := c.Poll(ctx, func(remote map[string]*types.Container, wasProblematic bool) {
		if wasProblematic {
			p.reconcile(ctx, c, remote)
		}
	})
	if err != nil {
		p.log.Warn().Str("worker", c.Worker().ID).Err(err).Msg("worker poll failed")
	}
}

// reconcile runs the three-part pass described for recovery from a
// problematic worker: adopt-or-ignore orphans, mark vanished containers
// lost, and retry deferred deletes still reported by the worker.
func (p *Pool) reconcile(ctx context.Context, c *Client, remote map[string]*types.Container) {
	local := c.Containers()

	for cid, ctr := range remote {
		if _, known := local[cid]; known {
			continue
		}
		if _, pendingDelete := containsID(c.DeferredDeletes(), cid); pendingDelete {
			continue
		}
		p.handleOrphan(ctx, c, ctr)
	}

	for cid, ctr := range local {
		if _, stillReported := remote[cid]; stillReported {
			continue
		}
		p.markLost(ctr)
	}

	for _, cid := range c.DeferredDeletes() {
		if _, stillReported := remote[cid]; stillReported {
			if err := c.Delete(context.Background(), cid); err != nil {
				p.log.Warn().Str("worker", c.Worker().ID).Str("container", cid).Err(err).Msg("deferred delete retry failed")
			}
		}
	}
}

func (p *Pool) handleOrphan(ctx context.Context, c *Client, ctr *types.Container) {
	if _, ok := p.correlate(ctr); ok {
		// Known instance, just not yet tracked locally: nothing to do,
		// Poll replaces the local map with remote after this pass.
		return
	}
	switch p.orphans {
	case OrphanDelete:
		if err := c.Delete(context.Background(), ctr.ID); err != nil {
			p.log.Warn().Str("worker", c.Worker().ID).Str("container", ctr.ID).Err(err).Msg("orphan delete failed")
		}
	case OrphanAdopt:
		p.adopt(ctx, c, ctr)
	case OrphanIgnore:
		// Leave it; the worker continues to own it.
	}
}

// adopt creates a terminated instance record for a container the store has
// no memory of, so it shows up to operators and is picked up by the normal
// remove-terminated sweep instead of lingering unseen on its worker.
func (p *Pool) adopt(ctx context.Context, c *Client, ctr *types.Container) {
	inst := &types.Instance{
		Formation:  ctr.Formation,
		Service:    ctr.Service,
		ID:         ctr.Instance,
		State:      types.StateTerminated,
		AssignedTo: c.Worker().ID,
		Image:      ctr.Image,
		Command:    ctr.Command,
	}
	if err := p.instances.Create(ctx, inst); err != nil {
		p.log.Warn().Str("worker", c.Worker().ID).Str("container", ctr.ID).Err(err).Msg("failed to adopt orphan container")
		return
	}
	p.log.Info().Str("worker", c.Worker().ID).Str("container", ctr.ID).Msg("adopted orphan container as terminated instance")
}

func (p *Pool) correlate(ctr *types.Container) (*types.Instance, bool) {
	inst := p.instances.Get(ctr.Formation, ctr.Service, ctr.Instance)
	if inst == nil {
		return nil, false
	}
	return inst, true
}

func (p *Pool) markLost(ctr *types.Container) {
	inst := p.instances.Get(ctr.Formation, ctr.Service, ctr.Instance)
	if inst == nil || inst.State == types.StateLost || inst.State == types.StateTerminated {
		return
	}
	next := *inst
	next.State = types.StateLost
	if err := p.instances.Update(context.Background(), &next); err != nil {
		p.log.Warn().Str("instance", inst.Name()).Err(err).Msg("failed to mark instance lost")
	}
}

func containsID(ids []string, id string) (int, bool) {
	for i, v := range ids {
		if v == id {
			return i, true
		}
	}
	return -1, false
}
