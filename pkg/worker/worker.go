package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jfet97/perform/internal/taskqueue"
	"github.com/jfet97/perform/pkg/api"
)

// ErrNilBinding is returned when a binding without a definition is enqueued.
var ErrNilBinding = errors.New("binding has no definition")

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// Enqueue schedules one run of b. It does NOT run it; that is done by
// ProcessOne. The returned channel delivers the run once it has finished.
func (w *Worker) Enqueue(ctx context.Context, b api.Binding) (<-chan *api.Run, error) {
	return w.EnqueueAt(ctx, b, time.Time{})
}

// EnqueueAt schedules one run of b no earlier than at.
func (w *Worker) EnqueueAt(ctx context.Context, b api.Binding, at time.Time) (<-chan *api.Run, error) {
	if b.Definition == nil {
		return nil, ErrNilBinding
	}

	result := make(chan *api.Run, 1)
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Binding:    b,
		Ctx:        context.WithoutCancel(ctx),
		Result:     result,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	if err := w.queue.Enqueue(ctx, t); err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessOne pulls a single task from the queue and runs it to completion.
// Returns (processed, error):
//   - processed == false: no task was run, err tells why (usually ctx was
//     cancelled while waiting for a task or for its NotBefore time).
//   - processed == true: a task was run and its result delivered. Runs
//     never fail, so err is nil.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	if err := waitUntil(ctx, task.NotBefore); err != nil {
		// Put the task back so a later worker can pick it up.
		if qerr := w.queue.Enqueue(context.WithoutCancel(ctx), *task); qerr != nil {
			return false, errors.Join(err, qerr)
		}
		return false, err
	}

	runCtx := task.Ctx
	if runCtx == nil {
		runCtx = context.WithoutCancel(ctx)
	}
	task.Deliver(w.engine.Execute(runCtx, task.Binding))
	return true, nil
}

func waitUntil(ctx context.Context, at time.Time) error {
	if at.IsZero() {
		return nil
	}
	d := time.Until(at)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
