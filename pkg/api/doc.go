// Package api contains the core building blocks used by the perform
// execution engine. It defines the resumable task contract, the values a
// task yields, the handler protocol used to negotiate failures, and the
// observer hooks used for logging and metrics.
//
// Most users interact with the higher-level perform package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom task implementations, custom engines and
// contributors extending the engine itself.
//
// # Tasks
//
// A Definition is a factory of Resumable values. The engine asks the
// Definition for a fresh Resumable every time a run starts and every time a
// handler restarts it, then drives it with Advance until it reports Done.
//
// Each step yields an Item: either a literal value or a deferred
// Computation. The engine evaluates the item and feeds the result back into
// the next Advance call.
//
// # Failures
//
// Errors returned by Advance are unrecoverable for the current execution:
// the handler may only restart. Errors returned by a Computation are
// recoverable: the handler may recover with a substitute value, retry the
// same computation, or restart the task.
//
// # Observability
//
// The Observer interface receives run, attempt, error and decision events.
// LoggingObserver, BasicMetrics and CompositeObserver are ready-made
// implementations.
package api
