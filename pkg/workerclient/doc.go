/*
Package workerclient implements one HTTP client per known worker: it polls
the worker's container endpoint on an interval, keeps a local map of
containers keyed by the worker-assigned id, and exposes dispatch, restart,
delete, find and wait operations the reconciliation loops call.

The container endpoint is plain JSON over HTTP, so the client is built on
net/http rather than a generated RPC stub; there is nothing in the
retrieved corpus that speaks this wire format, but the pattern (poll loop
feeding a locally-owned map, guarded by a single mutex) follows the
teacher's worker-side containers map.

A client starts problematic so the first poll always runs a
reconciliation pass before anything is considered trustworthy. While
problematic, every call but the next poll fails fast.
*/
package workerclient
