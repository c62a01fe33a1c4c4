package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketData  = []byte("data")
	bucketMeta  = []byte("meta")
	bucketWatch = []byte("watch")
)

type boltRecord struct {
	Value   []byte    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// BoltKV is a single-node durable KV store backed by bbolt, grounded in
// Warren's bucket-per-entity BoltStore pattern but generalized to a single
// flat key namespace with prefix scans. Watch is satisfied by an in-memory
// fanout of events appended to every successful mutation, identical in
// spirit to Memory's waiter registry; bbolt itself has no watch primitive.
type BoltKV struct {
	db *bolt.DB

	mu      sync.Mutex
	index   uint64
	waiters map[*waiter]struct{}
}

// NewBoltKV opens (creating if absent) a bbolt database under dataDir.
func NewBoltKV(dataDir string) (*BoltKV, error) {
	path := filepath.Join(dataDir, "fleetd.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}

	k := &BoltKV{db: db, waiters: make(map[*waiter]struct{})}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketData, bucketMeta, bucketWatch} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		if idx := tx.Bucket(bucketMeta).Get([]byte("index")); idx != nil {
			k.index = binary.BigEndian.Uint64(idx)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return k, nil
}

func (k *BoltKV) Close() error {
	return k.db.Close()
}

func (k *BoltKV) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := k.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketData).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var rec boltRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode record %s: %w", key, err)
		}
		if !rec.Expires.IsZero() && time.Now().After(rec.Expires) {
			return ErrNotFound
		}
		out = rec.Value
		return nil
	})
	return out, err
}

func (k *BoltKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.putLocked(key, value, ttl, ActionSet)
}

func (k *BoltKV) CAS(ctx context.Context, key string, prev, next []byte, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	err := k.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketData).Get([]byte(key))
		if raw == nil {
			if len(prev) != 0 {
				return ErrConflict
			}
			return nil
		}
		var rec boltRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode record %s: %w", key, err)
		}
		if !rec.Expires.IsZero() && time.Now().After(rec.Expires) {
			if len(prev) != 0 {
				return ErrConflict
			}
			return nil
		}
		if len(prev) == 0 || string(rec.Value) != string(prev) {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return err
	}
	return k.putLocked(key, next, ttl, ActionSet)
}

func (k *BoltKV) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var existed bool
	err := k.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketData)
		existed = b.Get([]byte(key)) != nil
		return b.Delete([]byte(key))
	})
	if err != nil || !existed {
		return err
	}
	return k.recordEventLocked(Event{Action: ActionDelete, Key: key})
}

func (k *BoltKV) GetRecursive(ctx context.Context, prefix string) (map[string][]byte, uint64, error) {
	out := make(map[string][]byte)
	var index uint64
	err := k.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketData).Cursor()
		p := []byte(prefix)
		for key, raw := c.Seek(p); key != nil && strings.HasPrefix(string(key), prefix); key, raw = c.Next() {
			var rec boltRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode record %s: %w", key, err)
			}
			if !rec.Expires.IsZero() && time.Now().After(rec.Expires) {
				continue
			}
			out[string(key)] = rec.Value
		}
		if idx := tx.Bucket(bucketMeta).Get([]byte("index")); idx != nil {
			index = binary.BigEndian.Uint64(idx)
		}
		return nil
	})
	return out, index, err
}

// Watch waits for the next event matching prefix past the store's current
// index. bbolt has no native blocking-watch primitive, so this uses the
// same waiter-channel fanout Memory uses, fed by putLocked/recordEventLocked.
// No event history is kept: a fromIndex at or below the current index
// cannot be replayed and returns ErrCompacted, so the caller rescans.
func (k *BoltKV) Watch(ctx context.Context, prefix string, fromIndex uint64, timeout time.Duration) (*Event, error) {
	k.mu.Lock()
	if k.index > 0 && fromIndex <= k.index {
		k.mu.Unlock()
		return nil, ErrCompacted
	}
	w := &waiter{prefix: prefix, from: fromIndex, ch: make(chan *Event, 1)}
	k.waiters[w] = struct{}{}
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		delete(k.waiters, w)
		k.mu.Unlock()
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

func (k *BoltKV) putLocked(key string, value []byte, ttl time.Duration, action Action) error {
	rec := boltRecord{Value: value}
	if ttl > 0 {
		rec.Expires = time.Now().Add(ttl)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	if err := k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Put([]byte(key), data)
	}); err != nil {
		return err
	}
	return k.recordEventLocked(Event{Action: action, Key: key, Value: value})
}

// recordEventLocked bumps the durable index counter and notifies matching
// waiters. Called with k.mu held.
func (k *BoltKV) recordEventLocked(ev Event) error {
	k.index++
	ev.Index = k.index

	err := k.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, k.index)
		return tx.Bucket(bucketMeta).Put([]byte("index"), buf)
	})
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	for w := range k.waiters {
		if ev.Index >= w.from && strings.HasPrefix(ev.Key, w.prefix) {
			evCopy := ev
			select {
			case w.ch <- &evCopy:
			default:
			}
		}
	}
	return nil
}
