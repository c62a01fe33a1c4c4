/*
Package kv defines the watched key-value store contract the control plane
is built on, and ships three implementations: an in-memory one for tests
and single-process use, a bbolt-backed one for durable single-node use,
and a raft-replicated one that applies writes to a bbolt store on every
node.

The contract is deliberately small: Get, Set, CAS, Delete, GetRecursive,
and Watch. Every persisted entity in fleetd (formation, release, instance,
leader) is a JSON blob under a fixed key layout; nothing above this package
knows or cares which implementation is behind the KV interface.
*/
package kv
