package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jfet97/perform/pkg/api"
)

var errNilTask = errors.New("definition returned a nil task")

// execution drives one top-level run of a binding through its attempts.
type execution struct {
	engine  *engineImpl
	binding api.Binding
	run     *api.Run
}

// drive runs attempts until one of them does not end in a restart.
func (x *execution) drive(ctx context.Context) {
	for x.attempt(ctx) {
		x.run.Restarts++
	}
}

// attempt runs one fresh execution of the task to completion or until its
// failure is absorbed. It reports whether the handler asked for a restart.
func (x *execution) attempt(ctx context.Context) (restart bool) {
	e := x.engine
	x.run.Attempts++
	attempt := x.run.Attempts

	e.observer.OnAttemptStart(ctx, x.run, attempt)
	e.updateRun(ctx, x.run)
	e.record(ctx, x.run, api.EventAttemptStarted, attempt, "")

	task, err := newTask(x.binding.Definition)
	if err != nil {
		return x.fail(ctx, err)
	}
	if closer, ok := task.(io.Closer); ok {
		defer func() {
			_ = closer.Close()
		}()
	}

	var input any
	for {
		step, err := advance(ctx, task, input)
		if err != nil {
			return x.fail(ctx, err)
		}
		if step.Done {
			x.run.Status = api.StatusCompleted
			return false
		}

		v, err := step.Item.Evaluate(ctx)
		if err == nil {
			input = v
			continue
		}

		d, lastErr := x.negotiate(ctx, step.Item, err)
		switch d.Kind {
		case api.DecisionRestart:
			return true
		case api.DecisionRecover, api.DecisionRetrySucceeded:
			input = d.Value
		default:
			x.absorb(lastErr)
			return false
		}
	}
}

// fail handles an unrecoverable error raised by the task itself.
func (x *execution) fail(ctx context.Context, err error) (restart bool) {
	c := x.consult(ctx, api.ErrorContext{Err: err, Recoverable: false})
	if c.request == requestRestart {
		x.decide(ctx, api.Decision{Kind: api.DecisionRestart})
		return true
	}
	x.decide(ctx, api.Decision{Kind: api.DecisionUnhandled})
	x.absorb(err)
	return false
}

func (x *execution) absorb(err error) {
	x.run.Status = api.StatusAbsorbed
	x.run.Err = err
}

// finalize invokes the finalizer once the run has reached its final outcome.
func (x *execution) finalize(ctx context.Context) {
	fin := x.binding.Finalizer
	if fin == nil {
		return
	}

	e := x.engine
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("finalizer panicked",
					"run_id", x.run.ID,
					"task", x.run.Name,
					"panic", r,
				)
			}
		}()
		fin(ctx)
	}()

	e.record(ctx, x.run, api.EventFinalized, x.run.Attempts, "")
}

func newTask(def api.Definition) (task api.Resumable, err error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", api.ErrInvalidTaskKind)
	}
	defer func() {
		if r := recover(); r != nil {
			task, err = nil, api.NewPanicError(r)
		}
	}()
	task = def.NewTask()
	if task == nil {
		return nil, errNilTask
	}
	return task, nil
}

func advance(ctx context.Context, task api.Resumable, input any) (step api.Step, err error) {
	defer func() {
		if r := recover(); r != nil {
			step, err = api.Step{}, api.NewPanicError(r)
		}
	}()
	return task.Advance(ctx, input)
}
