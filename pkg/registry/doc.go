/*
Package registry is the Worker Registry: the control plane's view of which
workers currently exist, sourced from the comma-separated
`SERVICE_REGISTRY` endpoints and consumed as an external collaborator
the way the KV store and worker HTTP API are. Nothing in the retrieved
corpus speaks a concrete service-discovery protocol, so this package
defines the minimal contract the rest of the control plane depends on
(Query, Watch) and ships two implementations: a poll-based one backed by
the same KV abstraction used for everything else (diffing successive
snapshots into add/remove callbacks), and a static one for tests and
single-node deployments that never changes membership.
*/
package registry
