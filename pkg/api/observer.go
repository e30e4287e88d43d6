package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; callbacks run on the
// goroutine driving the task.
type Observer interface {
	// OnRunStart is called once per top-level start, before the first
	// execution is created.
	OnRunStart(ctx context.Context, run *Run)

	// OnAttemptStart is called for every execution of the task: the first
	// one and one per restart. attempt is 1-based.
	OnAttemptStart(ctx context.Context, run *Run, attempt int)

	// OnError is called before the handler is consulted about a failure.
	OnError(ctx context.Context, run *Run, ec ErrorContext)

	// OnDecision is called once a failure has been negotiated.
	OnDecision(ctx context.Context, run *Run, d Decision)

	// OnRunFinished is called after the finalizer, when the run reached
	// StatusCompleted or StatusAbsorbed.
	OnRunFinished(ctx context.Context, run *Run, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)                            {}
func (NoopObserver) OnAttemptStart(ctx context.Context, run *Run, attempt int)           {}
func (NoopObserver) OnError(ctx context.Context, run *Run, ec ErrorContext)              {}
func (NoopObserver) OnDecision(ctx context.Context, run *Run, d Decision)                {}
func (NoopObserver) OnRunFinished(ctx context.Context, run *Run, duration time.Duration) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnAttemptStart(ctx context.Context, run *Run, attempt int) {
	for _, o := range c.observers {
		o.OnAttemptStart(ctx, run, attempt)
	}
}

func (c *CompositeObserver) OnError(ctx context.Context, run *Run, ec ErrorContext) {
	for _, o := range c.observers {
		o.OnError(ctx, run, ec)
	}
}

func (c *CompositeObserver) OnDecision(ctx context.Context, run *Run, d Decision) {
	for _, o := range c.observers {
		o.OnDecision(ctx, run, d)
	}
}

func (c *CompositeObserver) OnRunFinished(ctx context.Context, run *Run, d time.Duration) {
	for _, o := range c.observers {
		o.OnRunFinished(ctx, run, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("task", run.Name),
		slog.String("run_id", run.ID),
		slog.String("mode", string(run.Mode)),
	)
}

func (o *LoggingObserver) OnAttemptStart(ctx context.Context, run *Run, attempt int) {
	o.Logger.DebugContext(ctx, "attempt_start",
		slog.String("task", run.Name),
		slog.String("run_id", run.ID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnError(ctx context.Context, run *Run, ec ErrorContext) {
	o.Logger.WarnContext(ctx, "error_caught",
		slog.String("task", run.Name),
		slog.String("run_id", run.ID),
		slog.Bool("recoverable", ec.Recoverable),
		slog.Any("error", ec.Err),
	)
}

func (o *LoggingObserver) OnDecision(ctx context.Context, run *Run, d Decision) {
	o.Logger.InfoContext(ctx, "decision",
		slog.String("task", run.Name),
		slog.String("run_id", run.ID),
		slog.String("decision", d.Kind.String()),
	)
}

func (o *LoggingObserver) OnRunFinished(ctx context.Context, run *Run, d time.Duration) {
	level := slog.LevelInfo
	if run.Status == StatusAbsorbed {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "run_finished",
		slog.String("task", run.Name),
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Int("attempts", run.Attempts),
		slog.Int("retries", run.Retries),
		slog.Duration("duration", d),
		slog.Any("error", run.Err),
	)
}

// BasicMetrics collects simple counters and aggregate run durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsAbsorbed      atomic.Int64
	restarts          atomic.Int64
	recoverableErrors atomic.Int64
	fatalErrors       atomic.Int64
	decisions         [DecisionUnhandled + 1]atomic.Int64
	totalRunDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsAbsorbed  int64
	RunsInFlight  int64

	Restarts            int64
	RecoverableErrors   int64
	UnrecoverableErrors int64
	Recovered           int64
	RetriesSucceeded    int64
	Unhandled           int64

	AvgRunDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnAttemptStart(ctx context.Context, run *Run, attempt int) {
	if attempt > 1 {
		m.restarts.Add(1)
	}
}

func (m *BasicMetrics) OnError(ctx context.Context, run *Run, ec ErrorContext) {
	if ec.Recoverable {
		m.recoverableErrors.Add(1)
	} else {
		m.fatalErrors.Add(1)
	}
}

func (m *BasicMetrics) OnDecision(ctx context.Context, run *Run, d Decision) {
	if d.Kind >= DecisionNone && d.Kind <= DecisionUnhandled {
		m.decisions[d.Kind].Add(1)
	}
}

func (m *BasicMetrics) OnRunFinished(ctx context.Context, run *Run, d time.Duration) {
	if run.Status == StatusAbsorbed {
		m.runsAbsorbed.Add(1)
	} else {
		m.runsCompleted.Add(1)
	}
	m.totalRunDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	absorbed := m.runsAbsorbed.Load()
	totalNs := m.totalRunDuration.Load()

	var avg time.Duration
	if finished := completed + absorbed; finished > 0 {
		avg = time.Duration(totalNs / finished)
	}

	return BasicMetricsSnapshot{
		RunsStarted:         started,
		RunsCompleted:       completed,
		RunsAbsorbed:        absorbed,
		RunsInFlight:        started - completed - absorbed,
		Restarts:            m.restarts.Load(),
		RecoverableErrors:   m.recoverableErrors.Load(),
		UnrecoverableErrors: m.fatalErrors.Load(),
		Recovered:           m.decisions[DecisionRecover].Load(),
		RetriesSucceeded:    m.decisions[DecisionRetrySucceeded].Load(),
		Unhandled:           m.decisions[DecisionUnhandled].Load(),
		AvgRunDuration:      avg,
	}
}
