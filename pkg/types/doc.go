/*
Package types defines fleetd's core domain model: formations, releases,
instances, workers and containers.

# Architecture

The types package has no behavior of its own. It is the vocabulary every
other package shares: the instance store persists and watches these types,
the scheduler and dispatcher mutate their State field, the worker client
translates Instance into a container-create request and Container back
into instance-state transitions.

# Core Types

  - Formation: a named logical deployment (types.Formation)
  - Release: an immutable versioned definition of what a formation runs
  - ServiceTemplate: one process type within a release (image/command/env/ports)
  - Instance: one running (or pending, or dead) copy of a service
  - InstanceState: the closed set of lifecycle states a proc moves through
  - Worker: a registered node capable of running containers
  - Container: the worker-side realization of an instance

# State machine

Instance.State follows a fixed machine:

	pending -> pending-dispatch -> running -> shutting-down -> terminated
	running -> migrating -> running
	running -> lost

# Thread safety

Types in this package are plain data: read-safe, write-unsafe. Every
mutable collection of them (the instance store's in-memory map, a worker
client's container map) is owned by exactly one goroutine.
*/
package types
