package api

import (
	"context"
	"fmt"
)

// Computation is a deferred unit of work yielded by a task. Its failure is
// recoverable: the handler may retry it, replace its result or restart the
// task.
type Computation func(ctx context.Context) (any, error)

// Item is the value a task yields at a step: either a literal or a
// deferred Computation.
type Item struct {
	Value any
	Fn    Computation
}

// Literal wraps a plain value. Evaluating a literal never fails.
func Literal(v any) Item {
	return Item{Value: v}
}

// Defer wraps a computation. A nil fn yields a nil literal.
func Defer(fn Computation) Item {
	return Item{Fn: fn}
}

// Deferred reports whether the item holds a computation.
func (it Item) Deferred() bool {
	return it.Fn != nil
}

// Evaluate runs the item. Literals return their value; computations are
// invoked and a panic inside them is returned as a *PanicError.
func (it Item) Evaluate(ctx context.Context) (v any, err error) {
	if it.Fn == nil {
		return it.Value, nil
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, NewPanicError(r)
		}
	}()
	return it.Fn(ctx)
}

// Step is the outcome of advancing a task by one yield point.
type Step struct {
	Done bool
	Item Item
}

// Resumable is a single execution of a task.
//
// Advance resumes the task with input (ignored on the first call) and runs
// it until it yields an item or finishes. An error means the task body
// itself failed; the execution cannot be resumed afterwards.
//
// Implementations that hold resources (goroutines, connections) should
// also implement io.Closer; the engine closes executions it abandons.
type Resumable interface {
	Advance(ctx context.Context, input any) (Step, error)
}

// Definition produces fresh executions of a task. NewTask is called once
// per start and once per restart, so it must not share mutable state
// between the executions it returns.
type Definition interface {
	NewTask() Resumable
}

// DefinitionFunc adapts an ordinary function to Definition.
type DefinitionFunc func() Resumable

func (f DefinitionFunc) NewTask() Resumable { return f() }

// Yielder is handed to task bodies. Yield passes an item to the engine and
// blocks until the engine resumes the body, returning the resume value.
//
// Values of a computation shape (see AsComputation) are evaluated as
// deferred computations and an Item is used as is. Any other function fails
// with ErrUnsupportedYield. Remaining values are literals.
type Yielder interface {
	Yield(item any) any
}

// AsyncBody is the body of an async-mode task.
type AsyncBody func(ctx context.Context, y Yielder) error

// SyncBody is the body of a sync-mode task.
type SyncBody func(y Yielder) error

// PanicError carries a non-error value a task, computation or handler
// panicked with.
type PanicError struct {
	Value any
}

// NewPanicError converts a recovered value into an error. Values that are
// already errors are returned unchanged.
func NewPanicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &PanicError{Value: v}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
