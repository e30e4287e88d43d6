package perform

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jfet97/perform/internal/taskqueue"
	"github.com/jfet97/perform/pkg/api"
	"github.com/jfet97/perform/pkg/worker"
)

// ErrRunnerStarted is returned by StartWorkers when workers are already running.
var ErrRunnerStarted = errors.New("perform: LocalRunner already started")

// Ready is a task with its handler attached: an *AsyncCaught or an
// *AsyncFinal.
type Ready interface {
	binding() api.Binding
}

var (
	_ Ready = (*AsyncCaught)(nil)
	_ Ready = (*AsyncFinal)(nil)
)

// LocalRunner bundles an Engine, an in-memory task queue, and a pool of
// Workers to run async tasks in the background.
//
// Typical usage:
//
//	runner := perform.NewLocalRunner()
//	_ = runner.StartWorkers(ctx, 4)
//	defer runner.Stop()
//
//	done, err := runner.Submit(ctx, perform.Async(fetch).Catch(handler))
//	...
//	run := <-done
//
// Submitted tasks run on the runner's Engine whatever engine they were
// built with.
type LocalRunner struct {
	// Engine executes the submitted tasks.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// RunnerOption configures a LocalRunner.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	engine   Engine
	capacity int
	logger   *slog.Logger
}

// WithRunnerEngine runs submitted tasks on eng. Defaults to an in-memory
// journaling engine.
func WithRunnerEngine(eng Engine) RunnerOption {
	return func(c *runnerConfig) { c.engine = eng }
}

// WithQueueCapacity bounds the number of tasks waiting for a worker.
// Submit blocks while the queue is full.
func WithQueueCapacity(n int) RunnerOption {
	return func(c *runnerConfig) { c.capacity = n }
}

// WithRunnerLogger sets the logger for worker errors.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(c *runnerConfig) { c.logger = l }
}

// NewLocalRunner constructs a LocalRunner. Without options it uses an
// in-memory engine and a queue of taskqueue.DefaultCapacity tasks.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(opts ...RunnerOption) *LocalRunner {
	var cfg runnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.engine == nil {
		cfg.engine = NewInMemoryEngine()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	q := taskqueue.NewInMemoryQueue(cfg.capacity)
	return &LocalRunner{
		Engine: cfg.engine,
		Queue:  q,
		Worker: worker.New(cfg.engine, q),
		logger: cfg.logger,
	}
}

// NewSQLiteRunner constructs a LocalRunner whose engine journals runs in
// a SQLite database, so their history survives the process.
func NewSQLiteRunner(db *sql.DB, opts ...RunnerOption) (*LocalRunner, error) {
	eng, err := NewSQLiteEngine(db)
	if err != nil {
		return nil, err
	}
	return NewLocalRunner(append(opts, WithRunnerEngine(eng))...), nil
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled or Stop is called.
//
// If StartWorkers is called more than once without Stop, it returns
// ErrRunnerStarted.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRunnerStarted
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(id int) {
			defer r.wg.Done()

			for {
				_, err := r.Worker.ProcessOne(ctx)
				if err == nil {
					continue
				}
				// Cancellation is a clean shutdown signal.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				// For other errors, log and keep going so a single bad task
				// doesn't kill the worker loop.
				r.logger.Error("local runner worker error", "worker", id, "error", err)
			}
		}(i)
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit. Workers finish the run they are executing first;
// queued tasks stay queued until workers are started again.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Submit enqueues one run of task. The returned channel delivers the run
// once a worker has executed it, then closes.
func (r *LocalRunner) Submit(ctx context.Context, task Ready) (<-chan *Run, error) {
	return r.Worker.Enqueue(ctx, task.binding())
}

// SubmitAt enqueues one run of task that starts no earlier than at.
func (r *LocalRunner) SubmitAt(ctx context.Context, task Ready, at time.Time) (<-chan *Run, error) {
	return r.Worker.EnqueueAt(ctx, task.binding(), at)
}

// SubmitAll enqueues one run per task and returns their result channels in
// order. It stops at the first enqueue error.
func (r *LocalRunner) SubmitAll(ctx context.Context, tasks ...Ready) ([]<-chan *Run, error) {
	out := make([]<-chan *Run, 0, len(tasks))
	for _, t := range tasks {
		ch, err := r.Submit(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, ch)
	}
	return out, nil
}
