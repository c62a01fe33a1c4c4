package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/types"
)

// workerPrefix is the registry's KV namespace: workers/<formation>/<id>.
func workerPrefix(formation string) string {
	return "workers/" + formation + "/"
}

// PollRegistry queries a KV-backed worker namespace on a fixed interval
// and diffs successive snapshots, the same poll-and-diff shape the worker
// client uses against a single worker's container list.
type PollRegistry struct {
	kv        kv.KV
	formation string
	interval  time.Duration
}

// NewPollRegistry builds a registry that reads workers/<formation>/*.
func NewPollRegistry(store kv.KV, formation string, interval time.Duration) *PollRegistry {
	return &PollRegistry{kv: store, formation: formation, interval: interval}
}

// Query returns every worker currently registered.
func (r *PollRegistry) Query(ctx context.Context) (map[string]types.Worker, error) {
	values, _, err := r.kv.GetRecursive(ctx, workerPrefix(r.formation))
	if err != nil {
		return nil, fmt.Errorf("registry: query: %w", err)
	}
	out := make(map[string]types.Worker, len(values))
	for key, raw := range values {
		var w types.Worker
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		out[key] = w
	}
	return out, nil
}

// Watch polls on the configured interval, calling onAdd for workers newly
// present and onRemove for workers that disappeared, until ctx is
// canceled.
func (r *PollRegistry) Watch(ctx context.Context, onAdd, onRemove func(types.Worker)) error {
	known, err := r.Query(ctx)
	if err != nil {
		return err
	}
	for _, w := range known {
		if onAdd != nil {
			onAdd(w)
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, err := r.Query(ctx)
			if err != nil {
				continue // transient: retried on the next tick
			}
			for key, w := range current {
				if _, ok := known[key]; !ok && onAdd != nil {
					onAdd(w)
				}
			}
			for key, w := range known {
				if _, ok := current[key]; !ok && onRemove != nil {
					onRemove(w)
				}
			}
			known = current
		}
	}
}
