package workerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	c.baseURL = srv.URL
	return c
}

func TestResolveBaseURLPrefersExplicitHost(t *testing.T) {
	assert.Equal(t, "http://10.0.0.5:9000", resolveBaseURL(types.Worker{ID: "w1", Host: "10.0.0.5:9000"}, "demo"))
}

func TestResolveBaseURLFallsBackToServiceDiscoveryConvention(t *testing.T) {
	assert.Equal(t, "http://w1.api.demo.service:9000", resolveBaseURL(types.Worker{ID: "w1"}, "demo"))
}

func TestClientPollClearsProblematicOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]*types.Container{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	assert.True(t, c.Problematic())

	err := c.Poll(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, c.Problematic())
}

func TestClientPollFailureSetsProblematic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.Poll(context.Background(), nil)
	assert.Error(t, err)
	assert.True(t, c.Problematic())
}

func TestClientDispatchWhileProblematicFailsFast(t *testing.T) {
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	_, err := c.Dispatch(context.Background(), &types.Instance{})
	assert.ErrorIs(t, err, ErrProblematic)
}

func TestClientDispatchPostsAndCachesContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/container", r.URL.Path)
		var req dispatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "demo/web", req.Formation+"/"+req.Service)
		_ = json.NewEncoder(w).Encode(types.Container{ID: "c1", Formation: "demo", Service: "web", Instance: "a1", State: types.ContainerRunning})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.problematic = false

	ctr, err := c.Dispatch(context.Background(), &types.Instance{Formation: "demo", Service: "web", ID: "a1", Image: "demo/web:v1"})
	require.NoError(t, err)
	assert.Equal(t, "c1", ctr.ID)

	cached, ok := c.Find(&types.Instance{Formation: "demo", Service: "web", ID: "a1"})
	require.True(t, ok)
	assert.Equal(t, "c1", cached.ID)
}

func TestClientDeleteAddsDeferredOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.problematic = false

	err := c.Delete(context.Background(), "c1")
	assert.Error(t, err)
	assert.Contains(t, c.DeferredDeletes(), "c1")
}

func TestClientDeleteSuccessClearsCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.problematic = false
	c.containers["c1"] = &types.Container{ID: "c1"}

	err := c.Delete(context.Background(), "c1")
	require.NoError(t, err)
	_, ok := c.Find(&types.Instance{})
	assert.False(t, ok)
}

func TestClientWaitReturnsTerminalState(t *testing.T) {
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	c.problematic = false
	c.containers["c1"] = &types.Container{ID: "c1", Formation: "demo", Service: "web", Instance: "a1", State: types.ContainerDone}

	state, err := c.Wait(context.Background(), &types.Instance{Formation: "demo", Service: "web", ID: "a1"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.ContainerDone, state)
}

func TestClientWaitTimesOut(t *testing.T) {
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	_, err := c.Wait(context.Background(), &types.Instance{Formation: "demo", Service: "web", ID: "a1"}, 50*time.Millisecond)
	assert.Error(t, err)
}
