/*
Package failuredetector implements a PHI-accrual failure detector. One
Detector tracks every worker by id; the supervisor records a heartbeat
for each worker every time it applies a snapshot of the worker registry.
It estimates how surprising the current gap since the last heartbeat
is, given the historical distribution of gaps, and reports that as a
continuous "phi" value rather than a binary up/down flag.

This is independent of the worker client's problematic flag, which is
edge-triggered by the last call's outcome; phi is a trend signal. Its
only reader is the metrics collector, which counts workers as alive or
problematic by it. The scheduler and the dispatcher do not consult it,
so a worker with a high phi still receives placements and dispatches.
*/
package failuredetector
