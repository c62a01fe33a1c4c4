package release

import (
	"context"
	"fmt"

	"github.com/fleetctl/fleetd/pkg/types"
)

// Migrate rolls one live instance forward onto rel. fromRelease, if
// non-empty, restricts candidates to instances currently on that
// specific release; otherwise any instance not already on rel is a
// candidate. Returns true if another call would find more work.
func (c *Controller) Migrate(ctx context.Context, formation string, rel *types.Release, fromRelease string) (bool, error) {
	candidates := c.instances.QueryFormation(formation)

	// Instances on a service the new release no longer defines are torn
	// down regardless of build order.
	for _, inst := range candidates {
		if inst.Release == rel.Name || !inst.State.Live() {
			continue
		}
		if fromRelease != "" && inst.Release != fromRelease {
			continue
		}
		if _, stillDefined := rel.Services[inst.Service]; stillDefined {
			continue
		}
		inst.State = types.StateShuttingDown
		if err := c.instances.Update(ctx, inst); err != nil {
			return false, fmt.Errorf("release: retire %s: %w", inst.Name(), err)
		}
		return true, nil
	}

	order, err := buildOrder(rel.Services)
	if err != nil {
		return false, err
	}

	for _, service := range order {
		tmpl := rel.Services[service]
		for _, inst := range candidates {
			if inst.Service != service || inst.Release == rel.Name || !inst.State.Live() {
				continue
			}
			if fromRelease != "" && inst.Release != fromRelease {
				continue
			}

			inst.Release = rel.Name
			if inst.SameSpec(tmpl) && inst.SamePorts(tmpl) {
				// Re-release: the realized container is already correct,
				// only the bookkeeping release pointer moves forward.
			} else {
				inst.Image = tmpl.Image
				inst.Command = tmpl.Command
				inst.Env = tmpl.Env
				inst.Ports = tmpl.Ports
				inst.State = types.StateMigrating
			}
			if err := c.instances.Update(ctx, inst); err != nil {
				return false, fmt.Errorf("release: migrate %s: %w", inst.Name(), err)
			}
			return true, nil
		}
	}

	return false, nil
}
