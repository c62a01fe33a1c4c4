package reconcile

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
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.InstanceStore {
	t.Helper()
	s := store.NewInstanceStore(kv.NewMemory(0), events.NewBroker())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

// readyPool wires a single worker's client to a live httptest server and
// clears its problematic flag via a successful initial poll, so callers
// can drive Dispatch/Restart/Delete without that flag getting in the way.
func readyPool(t *testing.T, s *store.InstanceStore, workerID string, srv *httptest.Server) *workerclient.Pool {
	t.Helper()
	pool := workerclient.NewPool("demo", s, workerclient.OrphanIgnore, time.Second, zerolog.Nop())
	pool.Sync([]types.Worker{{ID: workerID, Host: hostOf(srv)}})
	c, ok := pool.Get(workerID)
	require.True(t, ok)
	require.NoError(t, c.Poll(context.Background(), nil))
	return pool
}

func TestDispatcherFlipsToRunningOnSuccess(t *testing.T) {
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

	s := newTestStore(t)
	require.NoError(t, s.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "i0", Release: "v1", Image: "app/web",
		State: types.StatePendingDispatch, AssignedTo: "w1",
	}))
	time.Sleep(20 * time.Millisecond)

	pool := readyPool(t, s, "w1", srv)
	d := NewDispatcher(s, pool)
	require.NoError(t, d.sweep(context.Background()))
	time.Sleep(20 * time.Millisecond)

	inst := s.Get("demo", "web", "i0")
	require.NotNil(t, inst)
	require.Equal(t, types.StateRunning, inst.State)
}

func TestDispatcherLeavesInstancePendingDispatchOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]*types.Container{})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestStore(t)
	require.NoError(t, s.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "i0", Release: "v1", Image: "app/web",
		State: types.StatePendingDispatch, AssignedTo: "w1",
	}))
	time.Sleep(20 * time.Millisecond)

	pool := readyPool(t, s, "w1", srv)
	d := NewDispatcher(s, pool)
	require.NoError(t, d.sweep(context.Background()))
	time.Sleep(20 * time.Millisecond)

	inst := s.Get("demo", "web", "i0")
	require.NotNil(t, inst)
	require.Equal(t, types.StatePendingDispatch, inst.State)
}

func TestDispatcherSkipsInstanceWithUnknownWorker(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "i0", Release: "v1", Image: "app/web",
		State: types.StatePendingDispatch, AssignedTo: "ghost",
	}))
	time.Sleep(20 * time.Millisecond)

	pool := workerclient.NewPool("demo", s, workerclient.OrphanIgnore, time.Second, zerolog.Nop())
	d := NewDispatcher(s, pool)
	require.NoError(t, d.sweep(context.Background()))
	time.Sleep(20 * time.Millisecond)

	inst := s.Get("demo", "web", "i0")
	require.NotNil(t, inst)
	require.Equal(t, types.StatePendingDispatch, inst.State)
}
