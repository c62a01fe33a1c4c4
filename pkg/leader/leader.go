/*
Package leader implements the advisory TTL lock that gates every
reconciliation loop: at most one control-plane process may hold it at a
time. The lock is just a key in the shared kv.KV store, acquired with
"SET IF ABSENT" (CAS against an empty prev) and kept alive by a heartbeat
that re-asserts it at half the TTL.
*/
package leader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/rs/zerolog"
)

const leaderKey = "leader"

// Lock is an advisory mutual-exclusion lock keyed in the KV store.
type Lock struct {
	kv    kv.KV
	owner string
	ttl   time.Duration
	log   zerolog.Logger

	mu       sync.Mutex
	held     bool
	lostCh   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Lock for the given owner id (typically the process's
// node id) and TTL.
func New(store kv.KV, owner string, ttl time.Duration) *Lock {
	return &Lock{
		kv:    store,
		owner: owner,
		ttl:   ttl,
		log:   log.WithComponent("leader"),
	}
}

// Acquire blocks, retrying at the given poll interval, until the lock is
// obtained, the context is cancelled, or an unexpected KV error occurs. On
// success it starts the heartbeat goroutine and returns a channel that is
// closed if leadership is subsequently lost (heartbeat failed to renew).
func (l *Lock) Acquire(ctx context.Context, pollInterval time.Duration) (<-chan struct{}, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		err := l.kv.CAS(ctx, leaderKey, nil, []byte(l.owner), l.ttl)
		if err == nil {
			l.mu.Lock()
			l.held = true
			l.lostCh = make(chan struct{})
			l.stopCh = make(chan struct{})
			l.doneCh = make(chan struct{})
			l.mu.Unlock()
			l.log.Info().Str("owner", l.owner).Msg("acquired leader lock")
			go l.heartbeatLoop(ctx)
			return l.lostCh, nil
		}
		if err != kv.ErrConflict {
			return nil, fmt.Errorf("leader acquire: %w", err)
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Lock) heartbeatLoop(ctx context.Context) {
	defer close(l.doneCh)

	interval := l.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := []byte(l.owner)
	for {
		select {
		case <-ticker.C:
			if err := l.kv.CAS(ctx, leaderKey, current, current, l.ttl); err != nil {
				l.log.Error().Err(err).Msg("leader heartbeat failed, releasing claim")
				l.mu.Lock()
				l.held = false
				close(l.lostCh)
				l.mu.Unlock()
				return
			}
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Held reports whether this process currently believes it holds the lock.
// Every reconciliation loop must check this before issuing a write; a
// stale positive is bounded by one heartbeat interval.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Release stops the heartbeat and best-effort deletes the key.
func (l *Lock) Release(ctx context.Context) {
	l.mu.Lock()
	held := l.held
	l.held = false
	if l.stopCh != nil {
		close(l.stopCh)
	}
	l.mu.Unlock()

	if held {
		<-l.doneCh
		if err := l.kv.Delete(ctx, leaderKey); err != nil {
			l.log.Warn().Err(err).Msg("failed to delete leader key on release")
		}
	}
}
