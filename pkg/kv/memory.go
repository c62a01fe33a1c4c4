package kv

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process KV implementation. It satisfies the full watch
// contract, including ErrCompacted on a history trim, which makes it the
// store the rest of fleetd is unit-tested against (see AMBIENT STACK /
// test tooling: it stands in for a real etcd-like backend).
type Memory struct {
	mu      sync.Mutex
	values  map[string]entry
	history []Event // append-only log, trimmed by historyLimit
	index   uint64
	waiters map[*waiter]struct{}

	historyLimit int
}

type entry struct {
	value   []byte
	expires time.Time // zero means no TTL
}

type waiter struct {
	prefix string
	from   uint64
	ch     chan *Event
}

// NewMemory constructs an empty in-memory store. historyLimit bounds how
// many past events are retained for Watch replay before a caller with a
// stale fromIndex gets ErrCompacted; 0 means unlimited (suitable for tests).
func NewMemory(historyLimit int) *Memory {
	return &Memory{
		values:       make(map[string]entry),
		waiters:      make(map[*waiter]struct{}),
		historyLimit: historyLimit,
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok || m.expired(e) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

func (m *Memory) CAS(ctx context.Context, key string, prev, next []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.values[key]
	if ok && m.expired(e) {
		ok = false
	}
	switch {
	case !ok && len(prev) != 0:
		return ErrConflict
	case ok && len(prev) == 0:
		return ErrConflict
	case ok && !bytes.Equal(e.value, prev):
		return ErrConflict
	}
	m.setLocked(key, next, ttl)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return nil
	}
	delete(m.values, key)
	m.index++
	m.appendLocked(Event{Action: ActionDelete, Key: key, Index: m.index})
	return nil
}

func (m *Memory) GetRecursive(ctx context.Context, prefix string) (map[string][]byte, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte)
	for k, e := range m.values {
		if !strings.HasPrefix(k, prefix) || m.expired(e) {
			continue
		}
		out[k] = append([]byte(nil), e.value...)
	}
	return out, m.index, nil
}

func (m *Memory) Watch(ctx context.Context, prefix string, fromIndex uint64, timeout time.Duration) (*Event, error) {
	m.mu.Lock()
	if ev, err := m.replayLocked(prefix, fromIndex); ev != nil || err != nil {
		m.mu.Unlock()
		return ev, err
	}
	w := &waiter{prefix: prefix, from: fromIndex, ch: make(chan *Event, 1)}
	m.waiters[w] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.waiters, w)
		m.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.ch:
		return ev, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// replayLocked returns the oldest retained event at or after fromIndex
// matching prefix, or ErrCompacted if events at or after fromIndex have
// been trimmed from retained history. A fromIndex of 0 is treated as 1,
// the first index the store assigns.
func (m *Memory) replayLocked(prefix string, fromIndex uint64) (*Event, error) {
	if fromIndex == 0 {
		fromIndex = 1
	}
	if len(m.history) > 0 && fromIndex < m.history[0].Index {
		return nil, ErrCompacted
	}
	for _, ev := range m.history {
		if ev.Index >= fromIndex && strings.HasPrefix(ev.Key, prefix) {
			evCopy := ev
			return &evCopy, nil
		}
	}
	return nil, nil
}

func (m *Memory) setLocked(key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.values[key] = entry{value: append([]byte(nil), value...), expires: expires}
	m.index++
	m.appendLocked(Event{Action: ActionSet, Key: key, Value: append([]byte(nil), value...), Index: m.index})
}

func (m *Memory) appendLocked(ev Event) {
	m.history = append(m.history, ev)
	if m.historyLimit > 0 && len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	for w := range m.waiters {
		if ev.Index >= w.from && strings.HasPrefix(ev.Key, w.prefix) {
			select {
			case w.ch <- &ev:
			default:
			}
		}
	}
}

func (m *Memory) expired(e entry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}
