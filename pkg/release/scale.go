package release

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
)

// Scale performs one bounded step toward the declared per-service scale:
// for the first service whose current live-instance count doesn't match
// its target, it either shuts one down (scale in) or creates one more
// (scale out), then returns. Returns true if another call would find more
// work, false once every service in scales is balanced.
func (c *Controller) Scale(ctx context.Context, rel *types.Release, scales map[string]int, src rand.Source) (bool, error) {
	for service, target := range scales {
		live := c.instances.Live(rel.Formation, rel.Name, service)

		switch {
		case len(live) > target:
			victim := pickScaleDownVictim(live, src)
			if victim == nil {
				continue
			}
			victim.State = types.StateShuttingDown
			if err := c.instances.Update(ctx, victim); err != nil {
				return false, fmt.Errorf("release: scale down %s: %w", victim.Name(), err)
			}
			return true, nil

		case len(live) < target:
			tmpl, ok := rel.Services[service]
			if !ok {
				return false, fmt.Errorf("release: scale target names unknown service %q", service)
			}
			inst := store.NewInstance(rel, service, tmpl)
			if err := c.instances.Create(ctx, inst); err != nil {
				return false, fmt.Errorf("release: scale up %s: %w", inst.Name(), err)
			}
			return true, nil
		}
	}
	return false, nil
}
