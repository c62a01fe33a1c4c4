package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putWorker(t *testing.T, store kv.KV, formation string, w types.Worker) {
	t.Helper()
	data, err := json.Marshal(w)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), workerPrefix(formation)+w.ID, data, 0))
}

func TestPollRegistryQueryReturnsAllWorkers(t *testing.T) {
	store := kv.NewMemory(0)
	putWorker(t, store, "demo", types.Worker{ID: "w1", Host: "h1"})
	putWorker(t, store, "demo", types.Worker{ID: "w2", Host: "h2"})

	r := NewPollRegistry(store, "demo", time.Hour)
	workers, err := r.Query(context.Background())
	require.NoError(t, err)
	assert.Len(t, workers, 2)
}

func TestPollRegistryWatchDetectsAddAndRemove(t *testing.T) {
	store := kv.NewMemory(0)
	putWorker(t, store, "demo", types.Worker{ID: "w1", Host: "h1"})

	r := NewPollRegistry(store, "demo", 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var adds, removes []types.Worker
	done := make(chan struct{})
	go func() {
		_ = r.Watch(ctx, func(w types.Worker) { adds = append(adds, w) }, func(w types.Worker) { removes = append(removes, w) })
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	putWorker(t, store, "demo", types.Worker{ID: "w2", Host: "h2"})
	require.NoError(t, store.Delete(context.Background(), workerPrefix("demo")+"w1"))

	<-done
	require.GreaterOrEqual(t, len(adds), 2) // w1 on initial replay, w2 on diff
	require.GreaterOrEqual(t, len(removes), 1)
}
