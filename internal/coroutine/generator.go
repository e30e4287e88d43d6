// Package coroutine turns straight-line task bodies into api.Resumable
// executions.
//
// Each execution runs its body on a dedicated goroutine that hands control
// back and forth with the caller of Advance, so exactly one side runs at a
// time. Closing an unfinished execution unwinds the body goroutine, running
// its deferred calls.
package coroutine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jfet97/perform/pkg/api"
)

// Body is a task body driven by a generator.
type Body func(ctx context.Context, y api.Yielder) error

// New returns a Definition whose executions run body from the start.
func New(body Body) api.Definition {
	return api.DefinitionFunc(func() api.Resumable {
		return newGenerator(body)
	})
}

// FromSync adapts a sync-mode body, which has no context parameter.
func FromSync(body api.SyncBody) api.Definition {
	return New(func(ctx context.Context, y api.Yielder) error {
		return body(y)
	})
}

// FromAsync adapts an async-mode body.
func FromAsync(body api.AsyncBody) api.Definition {
	return New(Body(body))
}

type outcome struct {
	item api.Item
	done bool
	err  error
}

// Generator is a goroutine-backed api.Resumable.
type Generator struct {
	body Body

	resume chan any
	out    chan outcome
	cancel chan struct{}
	exited chan struct{}

	unwinding atomic.Bool

	mu       sync.Mutex
	started  bool
	finished bool
	closed   bool
}

var _ api.Resumable = (*Generator)(nil)

func newGenerator(body Body) *Generator {
	return &Generator{
		body:   body,
		resume: make(chan any),
		out:    make(chan outcome),
		cancel: make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Advance runs the body until its next Yield or its end. The first call
// starts the body on ctx and ignores input; later calls resume the pending
// Yield with input.
func (g *Generator) Advance(ctx context.Context, input any) (api.Step, error) {
	g.mu.Lock()
	if g.finished || g.closed {
		g.mu.Unlock()
		return api.Step{Done: true}, nil
	}
	first := !g.started
	g.started = true
	g.mu.Unlock()

	if first {
		go g.run(ctx)
	} else {
		g.resume <- input
	}

	o := <-g.out
	if o.done || o.err != nil {
		g.mu.Lock()
		g.finished = true
		g.mu.Unlock()
		<-g.exited
		if o.err != nil {
			return api.Step{}, o.err
		}
		return api.Step{Done: true}, nil
	}
	return api.Step{Item: o.item}, nil
}

// Close stops a body parked in Yield and waits for its goroutine to exit.
// It is safe to call more than once.
func (g *Generator) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	parked := g.started && !g.finished
	g.mu.Unlock()

	close(g.cancel)
	if parked {
		<-g.exited
	}
	return nil
}

func (g *Generator) run(ctx context.Context) {
	defer close(g.exited)

	err := g.call(ctx)
	// Not reached when Yield exits the goroutine after Close.
	g.out <- outcome{done: true, err: err}
}

func (g *Generator) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = api.NewPanicError(r)
		}
	}()
	return g.body(ctx, yielder{g})
}

type yielder struct {
	g *Generator
}

// Yield hands item to Advance and parks until resumed. Once the generator
// is closed it never parks: the first Yield unwinds the body and any Yield
// made by a deferred call during that unwind returns nil at once.
func (y yielder) Yield(item any) any {
	select {
	case y.g.out <- outcome{item: api.ToItem(item)}:
	case <-y.g.cancel:
		if y.g.unwinding.Swap(true) {
			return nil
		}
		runtime.Goexit()
		return nil
	}
	select {
	case v := <-y.g.resume:
		return v
	case <-y.g.cancel:
		y.g.unwinding.Store(true)
		runtime.Goexit()
		return nil
	}
}
