package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// command is the unit of replication in the raft log: one KV primitive,
// generalizing WarrenFSM's per-entity create/update/delete switch into the
// three operations this package's contract actually needs.
type command struct {
	Op    string        `json:"op"` // "set", "cas", "delete"
	Key   string        `json:"key"`
	Value []byte        `json:"value,omitempty"`
	Prev  []byte        `json:"prev,omitempty"`
	TTL   time.Duration `json:"ttl,omitempty"`
}

// fsm applies committed commands to a local BoltKV. It never talks to the
// raft transport directly; Apply/Snapshot/Restore is the entire raft.FSM
// surface, mirroring WarrenFSM's shape.
type fsm struct {
	local *BoltKV
}

func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("decode raft command: %w", err)
	}

	ctx := context.Background()
	switch cmd.Op {
	case "set":
		return f.local.Set(ctx, cmd.Key, cmd.Value, cmd.TTL)
	case "cas":
		return f.local.CAS(ctx, cmd.Key, cmd.Prev, cmd.Value, cmd.TTL)
	case "delete":
		return f.local.Delete(ctx, cmd.Key)
	default:
		return fmt.Errorf("unknown raft kv command: %s", cmd.Op)
	}
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	values, _, err := f.local.GetRecursive(context.Background(), "")
	if err != nil {
		return nil, fmt.Errorf("snapshot scan: %w", err)
	}
	return &fsmSnapshot{values: values}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var values map[string][]byte
	if err := json.NewDecoder(rc).Decode(&values); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	ctx := context.Background()
	for k, v := range values {
		if err := f.local.Set(ctx, k, v, 0); err != nil {
			return fmt.Errorf("restore key %s: %w", k, err)
		}
	}
	return nil
}

type fsmSnapshot struct {
	values map[string][]byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.values); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// RaftKV is an optional replicated KV store: committed writes are applied
// identically to every node's local BoltKV via raft consensus. Reads are
// served locally (this package has no linearizable-read mode; reconciliation
// loops tolerate stale reads by re-converging on the next pass). Watch and
// GetRecursive delegate straight to the local BoltKV, since every replica's
// FSM applies the same command stream in the same order.
type RaftKV struct {
	*BoltKV
	raft *raft.Raft
}

// RaftConfig mirrors the tuning cuemby-warren's Manager.Bootstrap applies:
// short heartbeat/election timeouts suited to a handful of co-located nodes.
type RaftConfig struct {
	NodeID       string
	BindAddr     string
	DataDir      string
	Bootstrap    bool
	ExistingNode bool
}

// NewRaftKV stands up a raft.Raft instance replicating into a local BoltKV.
func NewRaftKV(cfg RaftConfig) (*RaftKV, error) {
	local, err := NewBoltKV(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open local kv: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve raft bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("raft transport: %w", err)
	}

	snapshotDir := filepath.Join(cfg.DataDir, "snapshots")
	snapshots, err := raft.NewFileSnapshotStore(snapshotDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("raft snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, &fsm{local: local}, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("new raft: %w", err)
	}

	if cfg.Bootstrap && !cfg.ExistingNode {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{ID: raftCfg.LocalID, Address: transport.LocalAddr()},
			},
		}
		r.BootstrapCluster(configuration)
	}

	return &RaftKV{BoltKV: local, raft: r}, nil
}

func (k *RaftKV) IsLeader() bool {
	return k.raft.State() == raft.Leader
}

func (k *RaftKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return k.apply(command{Op: "set", Key: key, Value: value, TTL: ttl})
}

func (k *RaftKV) CAS(ctx context.Context, key string, prev, next []byte, ttl time.Duration) error {
	return k.apply(command{Op: "cas", Key: key, Prev: prev, Value: next, TTL: ttl})
}

func (k *RaftKV) Delete(ctx context.Context, key string) error {
	return k.apply(command{Op: "delete", Key: key})
}

func (k *RaftKV) apply(cmd command) error {
	if !k.IsLeader() {
		return fmt.Errorf("kv: not the raft leader")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode raft command: %w", err)
	}
	f := k.raft.Apply(data, 10*time.Second)
	if err := f.Error(); err != nil {
		return fmt.Errorf("raft apply: %w", err)
	}
	if err, ok := f.Response().(error); ok && err != nil {
		return fmt.Errorf("fsm apply: %w", err)
	}
	return nil
}
