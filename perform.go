package perform

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jfet97/perform/internal/coroutine"
	"github.com/jfet97/perform/internal/engine"
	"github.com/jfet97/perform/internal/persistence"
	"github.com/jfet97/perform/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Run                  = api.Run
	RunEvent             = api.RunEvent
	EventType            = api.EventType
	RunListOptions       = api.RunListOptions
	Status               = api.Status
	Mode                 = api.Mode
	Binding              = api.Binding
	Definition           = api.Definition
	DefinitionFunc       = api.DefinitionFunc
	Resumable            = api.Resumable
	Step                 = api.Step
	Item                 = api.Item
	Computation          = api.Computation
	Yielder              = api.Yielder
	AsyncBody            = api.AsyncBody
	SyncBody             = api.SyncBody
	Handler              = api.Handler
	Finalizer            = api.Finalizer
	ErrorContext         = api.ErrorContext
	Controls             = api.Controls
	Decision             = api.Decision
	DecisionKind         = api.DecisionKind
	PanicError           = api.PanicError
	BackoffPolicy        = api.BackoffPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	// EngineOption configures engines built by the New*Engine helpers.
	EngineOption = engine.Option
)

// Re-export item and observer helpers.

var (
	Literal              = api.Literal
	Defer                = api.Defer
	IsComputation        = api.IsComputation
	IsAsyncBody          = api.IsAsyncBody
	IsSyncBody           = api.IsSyncBody
	IsDefinition         = api.IsDefinition
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export errors so callers can match them with errors.Is.

var (
	ErrInvalidTaskKind      = api.ErrInvalidTaskKind
	ErrInvalidHandler       = api.ErrInvalidHandler
	ErrInvalidFinalizer     = api.ErrInvalidFinalizer
	ErrInvalidRetryArgument = api.ErrInvalidRetryArgument
	ErrUnsupportedYield     = api.ErrUnsupportedYield
	ErrRunNotFound          = persistence.ErrRunNotFound
)

// Forever makes Controls.Retry retry until the computation succeeds.
const Forever = api.Forever

const (
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusAbsorbed  = api.StatusAbsorbed

	ModeAsync = api.ModeAsync
	ModeSync  = api.ModeSync

	EventRunStarted     = api.EventRunStarted
	EventAttemptStarted = api.EventAttemptStarted
	EventErrorCaught    = api.EventErrorCaught
	EventDecision       = api.EventDecision
	EventFinalized      = api.EventFinalized
	EventRunFinished    = api.EventRunFinished

	DecisionNone           = api.DecisionNone
	DecisionRestart        = api.DecisionRestart
	DecisionRecover        = api.DecisionRecover
	DecisionRetrySucceeded = api.DecisionRetrySucceeded
	DecisionUnhandled      = api.DecisionUnhandled
)

// Engine options

// WithObserver sets the observer notified of run lifecycle events.
func WithObserver(obs Observer) EngineOption {
	return engine.WithObserver(obs)
}

// WithBackoff spaces out retries requested through Controls.Retry.
func WithBackoff(p BackoffPolicy) EngineOption {
	return engine.WithBackoff(p)
}

// WithLogger sets the logger used for handler and finalizer panics and for
// journal write failures. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return engine.WithLogger(l)
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewEngine returns an Engine that keeps no journal. Runs are still
// returned to the caller but GetRun and ListRuns find nothing.
func NewEngine(opts ...EngineOption) Engine {
	return engine.NewEngine(persistence.Noop(), opts...)
}

// NewInMemoryEngine returns an Engine that journals runs in memory.
func NewInMemoryEngine(opts ...EngineOption) Engine {
	return engine.NewInMemoryEngine(opts...)
}

// NewSQLiteEngine returns an Engine that journals runs and their events in
// a SQLite database. The caller imports the driver, e.g. modernc.org/sqlite.
func NewSQLiteEngine(db *sql.DB, opts ...EngineOption) (Engine, error) {
	return engine.NewSQLiteEngine(db, opts...)
}

// NewPostgresEngine returns an Engine that journals runs in PostgreSQL.
// The caller imports the driver, e.g. github.com/jackc/pgx/v5/stdlib.
func NewPostgresEngine(db *sql.DB, opts ...EngineOption) (Engine, error) {
	return engine.NewPostgresEngine(db, opts...)
}

// NewRedisEngine returns an Engine that journals runs in Redis under the
// given key prefix ("perform:" when empty).
func NewRedisEngine(client *redis.Client, prefix string, opts ...EngineOption) Engine {
	return engine.NewRedisEngine(client, prefix, opts...)
}

// NewMongoEngine returns an Engine that journals runs in MongoDB
// ("perform" database when dbName is empty).
func NewMongoEngine(client *mongo.Client, dbName string, opts ...EngineOption) Engine {
	return engine.NewMongoEngine(client, dbName, opts...)
}

// Task definitions

// NewDefinition turns an async body into a reusable Definition. Every
// execution runs body from its first statement.
func NewDefinition(body AsyncBody) Definition {
	return coroutine.FromAsync(body)
}

// NewSyncDefinition turns a sync body into a reusable Definition.
func NewSyncDefinition(body SyncBody) Definition {
	return coroutine.FromSync(body)
}

// Convenience helpers that just forward to the underlying Engine.

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*Run, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*Run, error) {
	return eng.ListRuns(ctx, opts)
}

// ListEvents returns the history of a run.
func ListEvents(ctx context.Context, eng Engine, runID string) ([]RunEvent, error) {
	return eng.ListEvents(ctx, runID)
}
