/*
Package store implements the watched in-memory mirrors the control plane
reads and writes through: the Instance Store, and the Formation/Release
stores layered on top of the same kv.KV prefix contract.

The Instance Store is the only piece of mutable shared state every
reconciliation loop reads from; it owns the in-memory map and is the sole
writer of it, fed exclusively by its own watch goroutine (single-owner
rule). API-style writers (Create/Update/Delete) go through the store, which
writes to kv.KV and waits for nothing: the watch loop reflects the change
back into memory asynchronously, same as the source system.
*/
package store
