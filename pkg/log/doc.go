/*
Package log provides fleetd's structured logging, a thin wrapper around
zerolog.

A single package-level Logger is initialized once via log.Init(Config{...})
at process start. Every other package derives a component logger from it
with log.WithComponent("scheduler"), log.WithComponent("worker-client"),
and so on, and holds that logger as a field set at construction time rather
than reaching for the global on every call.

Context helpers (WithInstance, WithWorker) add one field at a time on top
of a component logger, matching how the reconciliation loops tag their log
lines with the instance or worker they're acting on:

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Str("instance", inst.Name()).Msg("placed instance")

Errors are always logged with .Err(err), never string-concatenated into
the message. Loops log-and-continue on a per-instance error rather than
propagating it up; the process exits (non-zero, from main) only when a
startup step fails (KV store unreachable, bind address in use), leaving
nothing useful to reconcile.
*/
package log
