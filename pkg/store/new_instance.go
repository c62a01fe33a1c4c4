package store

import (
	"strings"

	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/google/uuid"
)

// NewInstance builds a pending Instance from a release's service template,
// the way scale()'s create-one-instance step does. The instance id is a
// short uuid fragment, matching the "short unique id (UUID-like)" the data
// model calls for rather than a full 36-character uuid.
func NewInstance(release *types.Release, service string, tmpl *types.ServiceTemplate) *types.Instance {
	id := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return &types.Instance{
		Formation: release.Formation,
		Service:   service,
		ID:        id,
		Release:   release.Name,
		Image:     tmpl.Image,
		Command:   tmpl.Command,
		Env:       tmpl.Env,
		Ports:     tmpl.Ports,
		State:     types.StatePending,
	}
}
