package perform

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/jfet97/perform/internal/coroutine"
	"github.com/jfet97/perform/internal/engine"
	"github.com/jfet97/perform/internal/persistence"
	"github.com/jfet97/perform/pkg/api"
)

// The builder is a chain of gates. Each gate exposes only the calls that
// are legal at that point:
//
//	perform.Async(body).        // AsyncTask:   Catch
//	    Catch(handler).         // AsyncCaught: Finally, Try
//	    Finally(finalizer).     // AsyncFinal:  Try
//	    Try(ctx)                // <-chan *Run
//
// Sync mirrors it with SyncTask, SyncCaught and SyncFinal, whose Try blocks
// and returns the *Run directly.
//
// Nothing runs before Try, and every Try starts an independent run of the
// same binding. Invalid arguments panic with a *ConstructionError.

// ConstructionError is the panic value raised by the builder for invalid
// arguments. errors.Is matches it against ErrInvalidTaskKind,
// ErrInvalidHandler or ErrInvalidFinalizer.
type ConstructionError struct {
	Op  string
	Err error
}

func (e *ConstructionError) Error() string {
	return "perform: " + e.Op + ": " + e.Err.Error()
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func constructionPanic(op string, sentinel error, format string, args ...any) {
	panic(&ConstructionError{
		Op:  op,
		Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...),
	})
}

var (
	defaultEngineOnce sync.Once
	defaultEngine     Engine
)

// DefaultEngine returns the engine used by tasks built without WithEngine.
// It keeps no journal.
func DefaultEngine() Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = engine.NewEngine(persistence.Noop())
	})
	return defaultEngine
}

// TaskOption configures a task at creation.
type TaskOption func(*taskConfig)

type taskConfig struct {
	name   string
	engine Engine
}

// WithName names the task in run records and logs. Tasks default to the
// name of their body function.
func WithName(name string) TaskOption {
	return func(c *taskConfig) { c.name = name }
}

// WithEngine runs the task on eng instead of DefaultEngine().
func WithEngine(eng Engine) TaskOption {
	return func(c *taskConfig) { c.engine = eng }
}

// boundTask is the state shared by all gates of one builder chain.
type boundTask struct {
	binding api.Binding
	engine  Engine
}

func newBoundTask(mode api.Mode, def api.Definition, fallbackName string, opts []TaskOption) boundTask {
	cfg := taskConfig{name: fallbackName}
	for _, opt := range opts {
		opt(&cfg)
	}
	return boundTask{
		binding: api.Binding{
			Name:       cfg.name,
			Mode:       mode,
			Definition: def,
		},
		engine: cfg.engine,
	}
}

func (t boundTask) withHandler(h Handler) boundTask {
	if h == nil {
		constructionPanic("Catch", ErrInvalidHandler, "handler must not be nil")
	}
	t.binding.Handler = h
	return t
}

func (t boundTask) withFinalizer(f Finalizer) boundTask {
	if f == nil {
		constructionPanic("Finally", ErrInvalidFinalizer, "finalizer must not be nil")
	}
	t.binding.Finalizer = f
	return t
}

func (t boundTask) eng() Engine {
	if t.engine != nil {
		return t.engine
	}
	return DefaultEngine()
}

func (t boundTask) tryAsync(ctx context.Context) <-chan *Run {
	out := make(chan *Run, 1)
	go func() {
		defer close(out)
		out <- t.eng().Execute(ctx, t.binding)
	}()
	return out
}

func (t boundTask) trySync() *Run {
	return t.eng().Execute(context.Background(), t.binding)
}

// Async mode

// AsyncTask is an async task waiting for its handler.
type AsyncTask struct {
	t boundTask
}

// Async creates an async-mode task from task, which must be an AsyncBody,
// a func(context.Context, Yielder) error or a Definition.
func Async(task any, opts ...TaskOption) *AsyncTask {
	var (
		def  api.Definition
		name string
	)
	if body, ok := api.AsAsyncBody(task); ok {
		def, name = coroutine.FromAsync(body), funcName(task)
	} else if api.IsDefinition(task) {
		def, name = task.(api.Definition), fmt.Sprintf("%T", task)
	} else {
		constructionPanic("Async", ErrInvalidTaskKind, "%T is not an async task", task)
	}
	return &AsyncTask{t: newBoundTask(api.ModeAsync, def, name, opts)}
}

// Catch attaches the handler consulted on every failure.
func (a *AsyncTask) Catch(h Handler) *AsyncCaught {
	return &AsyncCaught{t: a.t.withHandler(h)}
}

// AsyncCaught is an async task with a handler.
type AsyncCaught struct {
	t boundTask
}

// Finally attaches a finalizer run once per Try, after the final outcome.
func (a *AsyncCaught) Finally(f Finalizer) *AsyncFinal {
	return &AsyncFinal{t: a.t.withFinalizer(f)}
}

// Try starts a run. The channel delivers the finished run and is then
// closed; it always delivers, whatever the task does.
func (a *AsyncCaught) Try(ctx context.Context) <-chan *Run {
	return a.t.tryAsync(ctx)
}

func (a *AsyncCaught) binding() api.Binding { return a.t.binding }

// AsyncFinal is an async task with a handler and a finalizer.
type AsyncFinal struct {
	t boundTask
}

// Try starts a run. See AsyncCaught.Try.
func (a *AsyncFinal) Try(ctx context.Context) <-chan *Run {
	return a.t.tryAsync(ctx)
}

func (a *AsyncFinal) binding() api.Binding { return a.t.binding }

// Sync mode

// SyncTask is a sync task waiting for its handler.
type SyncTask struct {
	t boundTask
}

// Sync creates a sync-mode task from task, which must be a SyncBody,
// a func(Yielder) error or a Definition.
func Sync(task any, opts ...TaskOption) *SyncTask {
	var (
		def  api.Definition
		name string
	)
	if body, ok := api.AsSyncBody(task); ok {
		def, name = coroutine.FromSync(body), funcName(task)
	} else if api.IsDefinition(task) {
		def, name = task.(api.Definition), fmt.Sprintf("%T", task)
	} else {
		constructionPanic("Sync", ErrInvalidTaskKind, "%T is not a sync task", task)
	}
	return &SyncTask{t: newBoundTask(api.ModeSync, def, name, opts)}
}

// Catch attaches the handler consulted on every failure.
func (s *SyncTask) Catch(h Handler) *SyncCaught {
	return &SyncCaught{t: s.t.withHandler(h)}
}

// SyncCaught is a sync task with a handler.
type SyncCaught struct {
	t boundTask
}

// Finally attaches a finalizer run once per Try, after the final outcome.
func (s *SyncCaught) Finally(f Finalizer) *SyncFinal {
	return &SyncFinal{t: s.t.withFinalizer(f)}
}

// Try runs the task to completion on the calling goroutine, restarts and
// finalizer included, and returns the run.
func (s *SyncCaught) Try() *Run {
	return s.t.trySync()
}

// SyncFinal is a sync task with a handler and a finalizer.
type SyncFinal struct {
	t boundTask
}

// Try runs the task. See SyncCaught.Try.
func (s *SyncFinal) Try() *Run {
	return s.t.trySync()
}

func funcName(fn any) string {
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
