/*
Package release implements the two operations exposed on a release:
Scale and Migrate. Both are single-bounded-step controllers: one call
performs at most one instance mutation and reports whether another call
would find more work, so a caller (the API layer, a CLI command, a
reconciliation loop) drives either to completion by calling it in a loop
and stops as soon as it returns false. This keeps a rollout or a scaling
operation interruptible and safely retryable from any point.
*/
package release
