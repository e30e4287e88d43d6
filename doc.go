// Package perform runs tasks that can recover from their own failures.
//
// A task is a body that yields items to the engine. Plain values come
// straight back; computations are evaluated by the engine, and when one
// fails a handler decides what happens next. The handler can retry the
// computation, resume the task with a replacement value, or restart the
// task from scratch. Whatever the outcome, an optional finalizer runs once
// at the end.
//
// # Core Concepts
//
//  1. Task body (AsyncBody, SyncBody or a Definition)
//  2. Handler and Controls
//  3. Finalizer
//  4. Engine
//  5. LocalRunner
//
// # Building a task
//
// Tasks are assembled through a chain of gates and nothing runs until Try:
//
//	done := perform.Async(func(ctx context.Context, y perform.Yielder) error {
//	    user := y.Yield(func(ctx context.Context) (any, error) {
//	        return repo.Load(ctx, id)
//	    })
//	    ...
//	    return nil
//	}).
//	    Catch(func(ctx context.Context, ec perform.ErrorContext, c perform.Controls) {
//	        if ec.Recoverable {
//	            _ = c.Retry(3)
//	        }
//	    }).
//	    Finally(func(ctx context.Context) { log.Println("done") }).
//	    Try(ctx)
//
//	run := <-done
//
// Sync mode works the same way with perform.Sync; its Try blocks and
// returns the *Run.
//
// Passing the wrong kind of task, a nil handler or a nil finalizer panics
// with a *ConstructionError.
//
// # Failures
//
// Errors from yielded computations are recoverable: the handler sees
// ErrorContext.Recoverable == true and may call Recover, Retry or Restart.
// Errors returned or panicked by the task body are not; only Restart has an
// effect. When a handler issues more than one directive the strongest wins,
// in the order Restart, Recover, Retry.
//
// A failure nobody handles is absorbed: the run finishes with
// StatusAbsorbed and the error in Run.Err, and the finalizer still runs.
// Try never returns an error.
//
// # Engine
//
// The Engine executes tasks and journals each run with its events.
// Engines can be backed by different storage systems:
//
//   - NewEngine            (no journal)
//   - NewInMemoryEngine    (for tests and local development)
//   - NewSQLiteEngine      (single-process persistence)
//   - NewPostgresEngine    (production-grade relational store)
//   - NewRedisEngine       (shared journal in Redis)
//   - NewMongoEngine       (document store)
//
// Tasks use DefaultEngine unless they are built with WithEngine.
//
// # LocalRunner
//
// LocalRunner bundles an Engine, an in-memory queue and a worker pool to
// run async tasks in the background:
//
//	runner := perform.NewLocalRunner()
//	_ = runner.StartWorkers(ctx, 4)
//	defer runner.Stop()
//
//	done, _ := runner.Submit(ctx, task)
package perform
