package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist (CAS reports
// a missing key as ErrConflict when prev is non-empty).
// Per the error taxonomy, a missing key is absence, not failure; callers
// that want null-on-miss semantics should check errors.Is(err, ErrNotFound)
// and treat it as a nil result rather than propagating it.
var ErrNotFound = errors.New("kv: key not found")

// ErrConflict is returned by CAS when prev does not match the stored value
// (including when the key is absent and prev is non-empty, or the key
// exists and prev is empty — "set if absent" is CAS with prev == "").
var ErrConflict = errors.New("kv: compare-and-swap conflict")

// ErrCompacted is returned by Watch when fromIndex refers to history the
// store has discarded; the caller must perform a full GetRecursive rescan
// and resume watching from the index that scan returns.
var ErrCompacted = errors.New("kv: watch index compacted")

// Action is the kind of change a watch Event describes.
type Action string

const (
	ActionSet    Action = "SET"
	ActionDelete Action = "DELETE"
)

// Event is one change observed on a watched prefix.
type Event struct {
	Action Action
	Key    string
	Value  []byte
	Index  uint64
}

// KV is the key-value store contract the control plane consumes. All
// values are opaque JSON-encoded blobs; this package never interprets
// them.
type KV interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, replacing any prior value. If ttl is
	// non-zero the key expires after ttl unless refreshed by another Set.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CAS stores next at key only if the current value equals prev
	// (byte-for-byte). An empty prev means "key must be absent" (set
	// if absent). Returns ErrConflict on mismatch.
	CAS(ctx context.Context, key string, prev, next []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// GetRecursive returns every key under prefix along with the index
	// current as of the read, suitable as the starting point for Watch.
	GetRecursive(ctx context.Context, prefix string) (values map[string][]byte, index uint64, err error)

	// Watch blocks until an event occurs under prefix at or after
	// fromIndex, or timeout elapses (in which case it returns a nil
	// Event and nil error — a "re-arm" signal, not a failure). It
	// returns ErrCompacted if fromIndex is older than the store's
	// retained history.
	Watch(ctx context.Context, prefix string, fromIndex uint64, timeout time.Duration) (*Event, error)
}
