package leader

import (
	"context"
	"testing"
	"time"

	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSucceedsWhenKeyAbsent(t *testing.T) {
	store := kv.NewMemory(0)
	l := New(store, "node-a", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	lost, err := l.Acquire(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, l.Held())

	l.Release(context.Background())
	select {
	case <-lost:
	default:
	}
}

func TestAcquireBlocksUntilKeyReleased(t *testing.T) {
	store := kv.NewMemory(0)
	first := New(store, "node-a", 200*time.Millisecond)

	ctx := context.Background()
	_, err := first.Acquire(ctx, 10*time.Millisecond)
	require.NoError(t, err)

	second := New(store, "node-b", 200*time.Millisecond)
	acquired := make(chan struct{})
	go func() {
		_, err := second.Acquire(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	first.Release(ctx)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}
