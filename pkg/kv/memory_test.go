package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	_, err := m.Get(ctx, "formation/web")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "formation/web", []byte(`{"name":"web"}`), 0))
	v, err := m.Get(ctx, "formation/web")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"web"}`, string(v))

	require.NoError(t, m.Delete(ctx, "formation/web"))
	_, err = m.Get(ctx, "formation/web")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCASSetIfAbsent(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.CAS(ctx, "leader", nil, []byte("node-a"), time.Second))
	err := m.CAS(ctx, "leader", nil, []byte("node-b"), time.Second)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, m.CAS(ctx, "leader", []byte("node-a"), []byte("node-b"), time.Second))
	v, err := m.Get(ctx, "leader")
	require.NoError(t, err)
	assert.Equal(t, "node-b", string(v))
}

func TestMemoryCASExpiredTreatedAsAbsent(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "leader", []byte("node-a"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, m.CAS(ctx, "leader", nil, []byte("node-b"), time.Second))
	v, err := m.Get(ctx, "leader")
	require.NoError(t, err)
	assert.Equal(t, "node-b", string(v))
}

func TestMemoryGetRecursivePrefix(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "instances/f1/web.1", []byte("a"), 0))
	require.NoError(t, m.Set(ctx, "instances/f1/web.2", []byte("b"), 0))
	require.NoError(t, m.Set(ctx, "formation/f1", []byte("c"), 0))

	values, index, err := m.GetRecursive(ctx, "instances/f1/")
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.EqualValues(t, 3, index)
}

func TestMemoryWatchReplaysBufferedEvent(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "instances/f1/web.1", []byte("a"), 0))

	ev, err := m.Watch(ctx, "instances/f1/", 0, time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "instances/f1/web.1", ev.Key)
	assert.Equal(t, ActionSet, ev.Action)
}

func TestMemoryWatchBlocksThenDelivers(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	_, idx, err := m.GetRecursive(ctx, "instances/")
	require.NoError(t, err)

	done := make(chan *Event, 1)
	go func() {
		ev, werr := m.Watch(ctx, "instances/", idx+1, 2*time.Second)
		require.NoError(t, werr)
		done <- ev
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Set(ctx, "instances/f1/web.1", []byte("a"), 0))

	select {
	case ev := <-done:
		require.NotNil(t, ev)
		assert.Equal(t, "instances/f1/web.1", ev.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not observe the write")
	}
}

func TestMemoryWatchTimeoutRearms(t *testing.T) {
	m := NewMemory(0)
	ev, err := m.Watch(context.Background(), "instances/", 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestMemoryWatchCompacted(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))

	_, err := m.Watch(ctx, "", 1, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrCompacted)
}
