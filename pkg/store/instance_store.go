package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetctl/fleetd/pkg/events"
	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/rs/zerolog"
)

const instancePrefix = "instances/"

func instanceKey(formation, name string) string {
	return instancePrefix + formation + "/" + name
}

// InstanceStore is a watched in-memory mirror of the instances/ KV prefix.
// It is the only piece of mutable shared state every reconciliation loop
// reads; the map is owned exclusively by the watch goroutine started by
// Start, and every mutation happens synchronously inside applyEvent.
type InstanceStore struct {
	kv     kv.KV
	broker *events.Broker
	log    zerolog.Logger

	mu        sync.RWMutex
	instances map[string]*types.Instance // key: instanceKey(formation, name)
	index     uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewInstanceStore constructs a store. Call Start before using it.
func NewInstanceStore(store kv.KV, broker *events.Broker) *InstanceStore {
	return &InstanceStore{
		kv:        store,
		broker:    broker,
		log:       log.WithComponent("instance-store"),
		instances: make(map[string]*types.Instance),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start performs the initial recursive read of instances/ and then begins
// the watch loop in a background goroutine.
func (s *InstanceStore) Start(ctx context.Context) error {
	if err := s.rescan(ctx); err != nil {
		return fmt.Errorf("initial instance scan: %w", err)
	}
	go s.watchLoop(ctx)
	return nil
}

// Stop halts the watch loop and waits for it to exit.
func (s *InstanceStore) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// rescan replaces the in-memory map wholesale from a fresh recursive read,
// used both by Start and by watch-loop recovery from a compacted index.
func (s *InstanceStore) rescan(ctx context.Context) error {
	values, index, err := s.kv.GetRecursive(ctx, instancePrefix)
	if err != nil {
		return err
	}

	fresh := make(map[string]*types.Instance, len(values))
	for key, raw := range values {
		var inst types.Instance
		if err := json.Unmarshal(raw, &inst); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("failed to decode instance during rescan, skipping")
			continue
		}
		fresh[key] = &inst
	}

	s.mu.Lock()
	s.instances = fresh
	s.index = index
	s.mu.Unlock()
	return nil
}

func (s *InstanceStore) watchLoop(ctx context.Context) {
	defer close(s.doneCh)

	s.mu.RLock()
	fromIndex := s.index + 1
	s.mu.RUnlock()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		ev, err := s.kv.Watch(ctx, instancePrefix, fromIndex, 30*time.Second)
		if err != nil {
			if err == kv.ErrCompacted {
				s.log.Warn().Msg("watch index compacted, performing full rescan")
				if rerr := s.rescan(ctx); rerr != nil {
					s.log.Error().Err(rerr).Msg("rescan after compaction failed, retrying")
					time.Sleep(time.Second)
					continue
				}
				s.mu.RLock()
				fromIndex = s.index + 1
				s.mu.RUnlock()
				continue
			}
			s.log.Error().Err(err).Msg("watch error, retrying from last known index")
			time.Sleep(time.Second)
			continue
		}
		if ev == nil {
			continue // timeout re-arm
		}

		s.applyEvent(ev)
		fromIndex = ev.Index + 1
	}
}

// applyEvent mutates the in-memory map and emits a synchronous
// create/update/delete notification. Idempotent: a SET whose decoded
// payload is byte-identical to what's already in memory is suppressed.
func (s *InstanceStore) applyEvent(ev *kv.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = ev.Index

	switch ev.Action {
	case kv.ActionDelete:
		if _, ok := s.instances[ev.Key]; !ok {
			return
		}
		inst := s.instances[ev.Key]
		delete(s.instances, ev.Key)
		s.publish(events.EventInstanceTerminated, inst)

	case kv.ActionSet:
		var inst types.Instance
		if err := json.Unmarshal(ev.Value, &inst); err != nil {
			s.log.Error().Err(err).Str("key", ev.Key).Msg("failed to decode instance event, skipping")
			return
		}
		existing, had := s.instances[ev.Key]
		if had && instanceEqual(existing, &inst) {
			return // idempotent suppress
		}
		s.instances[ev.Key] = &inst
		if had {
			s.publish(stateEventFor(inst.State), &inst)
		} else {
			s.publish(events.EventInstanceCreated, &inst)
		}
	}
}

func (s *InstanceStore) publish(t events.EventType, inst *types.Instance) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:    t,
		Message: inst.Name(),
		Metadata: map[string]string{
			"formation": inst.Formation,
			"service":   inst.Service,
			"instance":  inst.ID,
		},
	})
}

func stateEventFor(state types.InstanceState) events.EventType {
	switch state {
	case types.StatePendingDispatch:
		return events.EventInstancePlaced
	case types.StateRunning:
		return events.EventInstanceRunning
	case types.StateMigrating:
		return events.EventInstanceMigrating
	case types.StateShuttingDown:
		return events.EventInstanceShutdown
	case types.StateLost:
		return events.EventInstanceLost
	default:
		return events.EventInstancePlaced
	}
}

func instanceEqual(a, b *types.Instance) bool {
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(aj) == string(bj)
}

// Get returns the instance for (formation, service, id), or nil.
func (s *InstanceStore) Get(formation, service, id string) *types.Instance {
	name := service + "." + id
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceKey(formation, name)]
	if !ok {
		return nil
	}
	return cloneInstance(inst)
}

// QueryFormation returns every instance in a formation, ordered by name.
func (s *InstanceStore) QueryFormation(formation string) []*types.Instance {
	prefix := instancePrefix + formation + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Instance
	for key, inst := range s.instances {
		if strings.HasPrefix(key, prefix) {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// filterAll returns a clone of every instance matching pred, across all
// formations.
func (s *InstanceStore) filterAll(pred func(*types.Instance) bool) []*types.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Instance
	for _, inst := range s.instances {
		if pred(inst) {
			out = append(out, cloneInstance(inst))
		}
	}
	return out
}

// All returns every instance currently held in memory, across every
// formation and state. Used by metrics collection and health checks,
// which need the full set rather than one state/formation slice.
func (s *InstanceStore) All() []*types.Instance {
	return s.filterAll(func(*types.Instance) bool { return true })
}

// Unassigned returns instances with state pending (no worker chosen yet).
func (s *InstanceStore) Unassigned() []*types.Instance {
	return s.filterAll(func(i *types.Instance) bool { return i.State == types.StatePending })
}

// PendingDispatch returns instances placed but not yet realized.
func (s *InstanceStore) PendingDispatch() []*types.Instance {
	return s.filterAll(func(i *types.Instance) bool { return i.State == types.StatePendingDispatch })
}

// ShuttingDown returns instances mid-termination.
func (s *InstanceStore) ShuttingDown() []*types.Instance {
	return s.filterAll(func(i *types.Instance) bool { return i.State == types.StateShuttingDown })
}

// Terminated returns instances awaiting removal.
func (s *InstanceStore) Terminated() []*types.Instance {
	return s.filterAll(func(i *types.Instance) bool { return i.State == types.StateTerminated })
}

// Running returns instances currently running.
func (s *InstanceStore) Running() []*types.Instance {
	return s.filterAll(func(i *types.Instance) bool { return i.State == types.StateRunning })
}

// Live returns every formation/release/service instance in a live state,
// used by scale() to compute current counts (invariant 1).
func (s *InstanceStore) Live(formation, release, service string) []*types.Instance {
	return s.filterAll(func(i *types.Instance) bool {
		return i.Formation == formation && i.Release == release && i.Service == service && i.State.Live()
	})
}

// AssignedTo returns every instance currently assigned to a worker,
// regardless of state; used by the scheduler to count each worker's load.
func (s *InstanceStore) AssignedTo(workerID string) []*types.Instance {
	return s.filterAll(func(i *types.Instance) bool { return i.AssignedTo == workerID })
}

// Create writes a brand-new instance to the KV store via plain SET (the
// instance key itself isn't CAS-protected; only formation/release creation
// is). The in-memory map is updated asynchronously by the watch loop.
func (s *InstanceStore) Create(ctx context.Context, inst *types.Instance) error {
	now := time.Now()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	inst.StateSince = now
	if inst.State == "" {
		inst.State = types.StatePending
	}
	return s.write(ctx, inst)
}

// Update persists a mutated instance with last-writer-wins semantics:
// there is no CAS on instance mutations, only on formation/release creation.
// StateSince is refreshed whenever inst.State differs from what the store
// last saw for this instance, so it always measures time spent in the
// current state rather than time since creation.
func (s *InstanceStore) Update(ctx context.Context, inst *types.Instance) error {
	if s.stateChanged(inst) {
		inst.StateSince = time.Now()
	}
	inst.UpdatedAt = time.Now()
	return s.write(ctx, inst)
}

// stateChanged reports whether inst.State differs from the state this
// store currently has on record for it. An instance not yet known to the
// store (not found in the in-memory map) is treated as changed, so its
// first Update still stamps StateSince.
func (s *InstanceStore) stateChanged(inst *types.Instance) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prev, ok := s.instances[instanceKey(inst.Formation, inst.Name())]
	if !ok {
		return true
	}
	return prev.State != inst.State
}

// Delete removes an instance's KV record outright (used by the
// remove-terminated timeout handler).
func (s *InstanceStore) Delete(ctx context.Context, inst *types.Instance) error {
	return s.kv.Delete(ctx, instanceKey(inst.Formation, inst.Name()))
}

func (s *InstanceStore) write(ctx context.Context, inst *types.Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode instance %s: %w", inst.Name(), err)
	}
	return s.kv.Set(ctx, instanceKey(inst.Formation, inst.Name()), data, 0)
}

func cloneInstance(inst *types.Instance) *types.Instance {
	cp := *inst
	if inst.Env != nil {
		cp.Env = make(map[string]string, len(inst.Env))
		for k, v := range inst.Env {
			cp.Env[k] = v
		}
	}
	if inst.Ports != nil {
		cp.Ports = append([]types.PortSpec(nil), inst.Ports...)
	}
	if inst.Placement != nil {
		p := *inst.Placement
		cp.Placement = &p
	}
	return &cp
}
