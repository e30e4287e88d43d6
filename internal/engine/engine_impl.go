package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jfet97/perform/internal/persistence"
	"github.com/jfet97/perform/pkg/api"
)

// engineImpl is an in-process engine. Each Execute call drives one run on
// the calling goroutine; distinct runs share nothing but the journal and
// the observer.
type engineImpl struct {
	runs     persistence.RunStore
	events   persistence.EventStore
	observer api.Observer
	backoff  api.BackoffPolicy
	logger   *slog.Logger
}

// Config describes how to construct an engineImpl.
// External callers usually go through Option values instead.
type Config struct {
	Persistence persistence.Persistence
	Observer    api.Observer
	Backoff     api.BackoffPolicy
	Logger      *slog.Logger
}

// Option tweaks a Config.
type Option func(*Config)

// WithObserver sets the observer notified of run lifecycle events.
func WithObserver(obs api.Observer) Option {
	return func(c *Config) { c.Observer = obs }
}

// WithBackoff sets the pause policy between retries of a failed computation.
func WithBackoff(p api.BackoffPolicy) Option {
	return func(c *Config) { c.Backoff = p }
}

// WithLogger sets the logger used for panics in handlers and finalizers
// and for journal write failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithPersistence sets the run journal.
func WithPersistence(p persistence.Persistence) Option {
	return func(c *Config) { c.Persistence = p }
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := cfg.Persistence.WithDefaults()
	return &engineImpl{
		runs:     p.Runs,
		events:   p.Events,
		observer: obs,
		backoff:  cfg.Backoff,
		logger:   logger,
	}
}

// NewEngine returns an Engine journaling into p.
func NewEngine(p persistence.Persistence, opts ...Option) api.Engine {
	cfg := Config{Persistence: p}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewEngineWithConfig(cfg)
}

// NewInMemoryEngine returns an Engine that keeps its journal in memory.
func NewInMemoryEngine(opts ...Option) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngine(persistence.Persistence{
		Runs:   mem,
		Events: mem,
	}, opts...)
}

// NewSQLiteEngine returns an Engine journaling into a SQLite database.
func NewSQLiteEngine(db *sql.DB, opts ...Option) (api.Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, fmt.Errorf("init sqlite run store: %w", err)
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, fmt.Errorf("init sqlite event store: %w", err)
	}
	return NewEngine(persistence.Persistence{
		Runs:   runs,
		Events: events,
	}, opts...), nil
}

// NewPostgresEngine returns an Engine journaling into PostgreSQL.
func NewPostgresEngine(db *sql.DB, opts ...Option) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	return NewEngine(persistence.Persistence{
		Runs:   store,
		Events: store,
	}, opts...), nil
}

// NewRedisEngine returns an Engine journaling into Redis under prefix.
func NewRedisEngine(client *redis.Client, prefix string, opts ...Option) api.Engine {
	store := persistence.NewRedisStore(client, prefix)
	return NewEngine(persistence.Persistence{
		Runs:   store,
		Events: store,
	}, opts...)
}

// NewMongoEngine returns an Engine journaling into the given Mongo database.
func NewMongoEngine(client *mongo.Client, dbName string, opts ...Option) api.Engine {
	store := persistence.NewMongoStore(client, dbName)
	return NewEngine(persistence.Persistence{
		Runs:   store,
		Events: store,
	}, opts...)
}

func (e *engineImpl) Execute(ctx context.Context, b api.Binding) *api.Run {
	run := &api.Run{
		ID:        uuid.NewString(),
		Name:      b.Name,
		Mode:      b.Mode,
		Status:    api.StatusRunning,
		StartedAt: time.Now(),
	}

	e.observer.OnRunStart(ctx, run)
	e.saveRun(ctx, run)
	e.record(ctx, run, api.EventRunStarted, 0, string(run.Mode))

	x := &execution{engine: e, binding: b, run: run}
	x.drive(ctx)
	x.finalize(ctx)

	run.FinishedAt = time.Now()
	e.updateRun(ctx, run)
	e.record(ctx, run, api.EventRunFinished, run.Attempts, string(run.Status))
	e.observer.OnRunFinished(ctx, run, run.FinishedAt.Sub(run.StartedAt))

	return run
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.Run, error) {
	run, err := e.runs.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	filter := persistence.RunFilter{
		Name:   opts.Name,
		Status: opts.Status,
	}
	return e.runs.ListRuns(ctx, filter)
}

func (e *engineImpl) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	return e.events.ListEvents(ctx, runID)
}

// Journal writes outlive cancellation of the run's context and their
// failures are logged, never returned: a run always terminates.

func (e *engineImpl) saveRun(ctx context.Context, run *api.Run) {
	if err := e.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("journal: save run failed", "run_id", run.ID, "error", err)
	}
}

func (e *engineImpl) updateRun(ctx context.Context, run *api.Run) {
	if err := e.runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("journal: update run failed", "run_id", run.ID, "error", err)
	}
}

func (e *engineImpl) record(ctx context.Context, run *api.Run, typ api.EventType, attempt int, detail string) {
	ev := api.RunEvent{
		RunID:   run.ID,
		At:      time.Now(),
		Type:    typ,
		Attempt: attempt,
		Detail:  detail,
	}
	if err := e.events.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("journal: append event failed", "run_id", run.ID, "event", typ, "error", err)
	}
}
