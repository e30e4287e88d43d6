package api

import (
	"context"
	"math"
	"time"
)

// Status represents the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	// StatusAbsorbed marks a run whose last failure was left unhandled.
	StatusAbsorbed Status = "ABSORBED"
)

// Mode tells how a run was started.
type Mode string

const (
	ModeAsync Mode = "async"
	ModeSync  Mode = "sync"
)

// Binding is a task bound to its handler and optional finalizer, ready to
// be executed. Bindings are built by the perform package and are never
// mutated by the engine.
type Binding struct {
	Name       string
	Mode       Mode
	Definition Definition
	Handler    Handler
	Finalizer  Finalizer
}

// Run is the record of one top-level execution of a Binding, restarts
// included.
type Run struct {
	ID     string
	Name   string
	Mode   Mode
	Status Status

	// Attempts counts executions created for this run (1 + Restarts).
	Attempts int
	Restarts int

	// Retries counts re-invocations of failed computations.
	Retries int

	// Recoveries counts failures replaced through Controls.Recover.
	Recoveries int

	// Err is the failure absorbed by an ABSORBED run.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// RunListOptions controls how runs are listed.
// Zero values mean "no filter" for that field.
type RunListOptions struct {
	Name   string
	Status Status
}

// BackoffPolicy spaces out retries of a failed computation.
// The zero value retries immediately.
type BackoffPolicy struct {
	InitialBackoff time.Duration
	// Multiplier grows the delay per retry; values <= 0 mean 2.0.
	Multiplier float64
	// MaxBackoff caps the delay; <= 0 means no cap.
	MaxBackoff time.Duration
}

// Delay returns the pause before the retry with the given 0-based index.
func (p BackoffPolicy) Delay(retry int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(retry))
	if p.MaxBackoff > 0 && (math.IsInf(d, 1) || d > float64(p.MaxBackoff)) {
		return p.MaxBackoff
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Engine executes bindings and keeps a journal of their runs.
type Engine interface {
	// Execute runs b to termination, restarts and finalizer included.
	// It never fails: task errors are handled or absorbed.
	Execute(ctx context.Context, b Binding) *Run

	// GetRun looks up a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs matching the given options.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)

	// ListEvents returns the history of a run in append order.
	ListEvents(ctx context.Context, runID string) ([]RunEvent, error)
}
