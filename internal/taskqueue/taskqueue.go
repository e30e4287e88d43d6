package taskqueue

import (
	"context"
	"time"

	"github.com/jfet97/perform/pkg/api"
)

// Task is a unit of work for the worker: one top-level run of a bound task.
//
// Bindings hold Go closures, so tasks only travel through in-process
// queues.
type Task struct {
	ID      string
	Binding api.Binding

	// Ctx is handed to the engine when the task runs. It carries the
	// submitter's values but not its cancellation.
	Ctx context.Context

	// Result receives the finished run and is then closed. It must have
	// room for one value.
	Result chan *api.Run

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately".
	NotBefore time.Time
}

// Deliver hands run to whoever awaits the task and closes Result.
func (t *Task) Deliver(run *api.Run) {
	if t.Result == nil {
		return
	}
	t.Result <- run
	close(t.Result)
}

// Queue is a simple task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
