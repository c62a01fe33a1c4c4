package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestUpdaterRestartsOnImageDrift(t *testing.T) {
	var restarted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]*types.Container{
				"c1": {ID: "c1", Formation: "demo", Service: "web", Instance: "i0", Image: "app/web:old", State: types.ContainerRunning},
			})
		case r.Method == http.MethodPut:
			restarted = true
			_ = json.NewEncoder(w).Encode(types.Container{
				ID: "c1", Formation: "demo", Service: "web", Instance: "i0", Image: "app/web:new", State: types.ContainerRunning,
			})
		}
	}))
	defer srv.Close()

	s := newTestStore(t)
	require.NoError(t, s.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "i0", Release: "v1", Image: "app/web:new",
		State: types.StateRunning, AssignedTo: "w1",
	}))
	time.Sleep(20 * time.Millisecond)

	pool := readyPool(t, s, "w1", srv)
	u := NewUpdater(s, pool)
	require.NoError(t, u.sweep(context.Background()))

	require.True(t, restarted)
}

func TestUpdaterSkipsMatchingContainer(t *testing.T) {
	var restarted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]*types.Container{
				"c1": {ID: "c1", Formation: "demo", Service: "web", Instance: "i0", Image: "app/web", State: types.ContainerRunning},
			})
		case r.Method == http.MethodPut:
			restarted = true
		}
	}))
	defer srv.Close()

	s := newTestStore(t)
	require.NoError(t, s.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "i0", Release: "v1", Image: "app/web",
		State: types.StateRunning, AssignedTo: "w1",
	}))
	time.Sleep(20 * time.Millisecond)

	pool := readyPool(t, s, "w1", srv)
	u := NewUpdater(s, pool)
	require.NoError(t, u.sweep(context.Background()))

	require.False(t, restarted)
}

func TestUpdaterSkipsInstanceWithNoCorrelatingContainer(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "i0", Release: "v1", Image: "app/web",
		State: types.StateRunning, AssignedTo: "w1",
	}))
	time.Sleep(20 * time.Millisecond)

	pool := workerclient.NewPool("demo", s, workerclient.OrphanIgnore, time.Second, zerolog.Nop())
	u := NewUpdater(s, pool)
	require.NoError(t, u.sweep(context.Background())) // no worker registered; must not panic
}
