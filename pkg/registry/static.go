package registry

import (
	"context"
	"sync"

	"github.com/fleetctl/fleetd/pkg/types"
)

// StaticRegistry is a fixed or test-driven worker set: Query returns
// whatever Set last stored, Watch replays the current membership once as
// adds and then blocks until ctx is canceled. Used for single-node
// deployments and tests that want direct control over membership instead
// of a real poll loop.
type StaticRegistry struct {
	mu      sync.RWMutex
	workers map[string]types.Worker
}

// NewStaticRegistry builds a registry seeded with the given workers.
func NewStaticRegistry(workers ...types.Worker) *StaticRegistry {
	r := &StaticRegistry{workers: make(map[string]types.Worker, len(workers))}
	for _, w := range workers {
		r.workers[w.ID] = w
	}
	return r
}

// Set replaces the registered worker set wholesale.
func (r *StaticRegistry) Set(workers ...types.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = make(map[string]types.Worker, len(workers))
	for _, w := range workers {
		r.workers[w.ID] = w
	}
}

// Add registers a single worker, invoking onAdd callbacks is the caller's
// responsibility; this type does not push updates on its own.
func (r *StaticRegistry) Add(w types.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[w.ID] = w
}

// Remove deregisters a worker by id.
func (r *StaticRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

func (r *StaticRegistry) Query(context.Context) (map[string]types.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]types.Worker, len(r.workers))
	for k, v := range r.workers {
		out[k] = v
	}
	return out, nil
}

func (r *StaticRegistry) Watch(ctx context.Context, onAdd, onRemove func(types.Worker)) error {
	if onAdd != nil {
		for _, w := range r.workers {
			onAdd(w)
		}
	}
	<-ctx.Done()
	return nil
}
