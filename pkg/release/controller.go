package release

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
)

// Controller runs Scale and Migrate against the shared instance store.
type Controller struct {
	instances *store.InstanceStore
}

// New builds a Controller over the given instance store.
func New(instances *store.InstanceStore) *Controller {
	return &Controller{instances: instances}
}

// buildOrder computes a dependency-first processing order for a release's
// services: if web requires db, db is ordered before web. Services named
// in Requires but absent from the template set are ignored (dangling
// requirements are not this function's concern). Returns an error if the
// requirement graph has a cycle.
func buildOrder(services map[string]*types.ServiceTemplate) ([]string, error) {
	indegree := make(map[string]int, len(services))
	dependents := make(map[string][]string, len(services))

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
		indegree[name] = 0
	}
	sort.Strings(names)

	for _, name := range names {
		for _, req := range services[name].Requires {
			if _, ok := services[req]; !ok {
				continue
			}
			indegree[name]++
			dependents[req] = append(dependents[req], name)
		}
	}

	var queue []string
	for _, name := range names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		next := append([]string(nil), dependents[n]...)
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = insertSorted(queue, dep)
			}
		}
	}

	if len(order) != len(services) {
		return nil, fmt.Errorf("release: requires graph has a cycle")
	}
	return order, nil
}

func insertSorted(queue []string, name string) []string {
	i := sort.SearchStrings(queue, name)
	queue = append(queue, "")
	copy(queue[i+1:], queue[i:])
	queue[i] = name
	return queue
}

// pickScaleDownVictim chooses one instance to shut down when scaling
// down. src makes the choice deterministic for tests; production callers
// pass a source seeded from real entropy.
func pickScaleDownVictim(live []*types.Instance, src rand.Source) *types.Instance {
	if len(live) == 0 {
		return nil
	}
	r := rand.New(src)
	return live[r.Intn(len(live))]
}
