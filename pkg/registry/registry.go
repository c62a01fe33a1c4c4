package registry

import (
	"context"

	"github.com/fleetctl/fleetd/pkg/types"
)

// Registry supplies the current set of worker nodes. Query is a point
// snapshot; Watch pushes incremental add/remove callbacks as membership
// changes, blocking until ctx is canceled.
type Registry interface {
	Query(ctx context.Context) (map[string]types.Worker, error)
	Watch(ctx context.Context, onAdd, onRemove func(types.Worker)) error
}
