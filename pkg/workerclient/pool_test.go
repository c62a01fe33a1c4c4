package workerclient

import (
	"context"
	"testing"
	"time"

	"github.com/fleetctl/fleetd/pkg/events"
	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestInstanceStore(t *testing.T) *store.InstanceStore {
	t.Helper()
	s := store.NewInstanceStore(kv.NewMemory(0), events.NewBroker())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func TestPoolSyncAddsAndDropsClients(t *testing.T) {
	p := NewPool("demo", newTestInstanceStore(t), OrphanIgnore, time.Second, zerolog.Nop())

	p.Sync([]types.Worker{{ID: "w1"}, {ID: "w2"}})
	require.Len(t, p.All(), 2)

	p.Sync([]types.Worker{{ID: "w1"}})
	all := p.All()
	require.Len(t, all, 1)
	require.Equal(t, "w1", all[0].Worker().ID)
}

func TestPoolReconcileMarksLostWhenContainerVanishes(t *testing.T) {
	s := newTestInstanceStore(t)
	require.NoError(t, s.Create(context.Background(), &types.Instance{
		Formation: "demo", Service: "web", ID: "a1", Release: "v1",
		State: types.StateRunning, AssignedTo: "w1",
	}))
	time.Sleep(20 * time.Millisecond) // let the watch loop apply the create

	p := NewPool("demo", s, OrphanIgnore, time.Second, zerolog.Nop())
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	c.problematic = false
	c.containers["c1"] = &types.Container{ID: "c1", Formation: "demo", Service: "web", Instance: "a1", State: types.ContainerRunning}

	p.reconcile(context.Background(), c, map[string]*types.Container{}) // worker now reports nothing
	time.Sleep(20 * time.Millisecond)

	inst := s.Get("demo", "web", "a1")
	require.NotNil(t, inst)
	require.Equal(t, types.StateLost, inst.State)
}

func TestPoolReconcileIgnoresOrphanByDefault(t *testing.T) {
	s := newTestInstanceStore(t)
	p := NewPool("demo", s, OrphanIgnore, time.Second, zerolog.Nop())
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	c.problematic = false

	orphan := &types.Container{ID: "orphan1", Formation: "demo", Service: "web", Instance: "ghost", State: types.ContainerRunning}
	p.reconcile(context.Background(), c, map[string]*types.Container{"orphan1": orphan})
	time.Sleep(20 * time.Millisecond)

	require.Nil(t, s.Get("demo", "web", "ghost"))
}

func TestPoolReconcileAdoptsOrphanWhenPolicyIsAdopt(t *testing.T) {
	s := newTestInstanceStore(t)
	p := NewPool("demo", s, OrphanAdopt, time.Second, zerolog.Nop())
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	c.problematic = false

	orphan := &types.Container{
		ID: "orphan1", Formation: "demo", Service: "web", Instance: "ghost",
		Image: "app/web", State: types.ContainerRunning,
	}
	p.reconcile(context.Background(), c, map[string]*types.Container{"orphan1": orphan})
	time.Sleep(20 * time.Millisecond)

	inst := s.Get("demo", "web", "ghost")
	require.NotNil(t, inst)
	require.Equal(t, types.StateTerminated, inst.State)
	require.Equal(t, "w1", inst.AssignedTo)
	require.Equal(t, "app/web", inst.Image)
}

func TestPoolReconcileDeletesOrphanWhenPolicyIsDelete(t *testing.T) {
	s := newTestInstanceStore(t)
	p := NewPool("demo", s, OrphanDelete, time.Second, zerolog.Nop())
	c := New(types.Worker{ID: "w1"}, "demo", zerolog.Nop())
	c.problematic = false

	orphan := &types.Container{ID: "orphan1", Formation: "demo", Service: "web", Instance: "ghost", State: types.ContainerRunning}
	// Delete will fail fast against no real server but must not panic; the
	// point under test is that OrphanDelete attempts a delete at all.
	p.reconcile(context.Background(), c, map[string]*types.Container{"orphan1": orphan})
	require.Contains(t, c.DeferredDeletes(), "orphan1")
}
