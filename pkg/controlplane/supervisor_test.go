package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetctl/fleetd/pkg/events"
	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/leader"
	"github.com/fleetctl/fleetd/pkg/registry"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSupervisorSchedulesAndDispatchesAPendingInstance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]*types.Container{})
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(types.Container{
				ID: "c1", Formation: "demo", Service: "web", Instance: "i0",
				Image: "app/web", State: types.ContainerRunning,
			})
		}
	}))
	defer srv.Close()

	backing := kv.NewMemory(0)
	instances := store.NewInstanceStore(backing, events.NewBroker())
	require.NoError(t, instances.Start(context.Background()))
	defer instances.Stop()

	require.NoError(t, instances.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "i0", Release: "v1", Image: "app/web",
	}))
	time.Sleep(20 * time.Millisecond)

	host := strings.TrimPrefix(srv.URL, "http://")
	reg := registry.NewStaticRegistry(types.Worker{ID: "w1", Host: host})
	pool := workerclient.NewPool("demo", instances, workerclient.OrphanIgnore, 20*time.Millisecond, zerolog.Nop())
	lock := leader.New(backing, "node-a", time.Second)

	sup := NewSupervisor(instances, reg, pool, lock, Thresholds{})

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		inst := instances.Get("demo", "web", "i0")
		return inst != nil && inst.State == types.StateRunning
	}, 7*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}
