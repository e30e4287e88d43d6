// Package worker provides the background worker used to run bound tasks
// off the caller's goroutine.
//
// A Worker consumes tasks from a task queue and executes each of them as
// one top-level run on an engine. Runs always terminate, so a worker never
// fails a task: whatever the outcome, the finished run is delivered on the
// channel returned when the task was enqueued.
//
// Workers are long-lived and typically run in dedicated goroutines. Several
// workers can share one queue; each run still executes sequentially on the
// worker that dequeued it.
//
// Most applications use the LocalRunner of the perform package, which wires
// an engine, an in-memory queue and a pool of workers together.
package worker
