package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/jfet97/perform/internal/persistence"
)

// Journal is an opened run journal together with the connection backing
// it.
type Journal struct {
	Driver      string
	Persistence persistence.Persistence

	close func(ctx context.Context) error
}

// Close releases the connection behind the journal.
func (j *Journal) Close(ctx context.Context) error {
	if j == nil || j.close == nil {
		return nil
	}
	return j.close(ctx)
}

// OpenJournal connects to the configured backend and prepares its schema.
func OpenJournal(ctx context.Context, cfg JournalConfig) (*Journal, error) {
	switch cfg.Driver {
	case DriverNone:
		return &Journal{Driver: DriverNone, Persistence: persistence.Noop()}, nil

	case "", DriverMemory:
		mem := persistence.NewInMemoryStore()
		return &Journal{
			Driver:      DriverMemory,
			Persistence: persistence.Persistence{Runs: mem, Events: mem},
		}, nil

	case DriverSQLite:
		return openSQLite(ctx, cfg.DSN)

	case DriverPostgres:
		return openPostgres(ctx, cfg.DSN)

	case DriverRedis:
		return openRedis(ctx, cfg)

	case DriverMongo:
		return openMongo(ctx, cfg)
	}
	return nil, fmt.Errorf("journal: unknown driver %q", cfg.Driver)
}

func openSQLite(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared between calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite run store: %w", err)
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite event store: %w", err)
	}

	return &Journal{
		Driver:      DriverSQLite,
		Persistence: persistence.Persistence{Runs: runs, Events: events},
		close:       func(context.Context) error { return db.Close() },
	}, nil
}

func openPostgres(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init postgres store: %w", err)
	}

	return &Journal{
		Driver:      DriverPostgres,
		Persistence: persistence.Persistence{Runs: store, Events: store},
		close:       func(context.Context) error { return db.Close() },
	}, nil
}

func openRedis(ctx context.Context, cfg JournalConfig) (*Journal, error) {
	opt, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	store := persistence.NewRedisStore(client, cfg.Prefix)
	return &Journal{
		Driver:      DriverRedis,
		Persistence: persistence.Persistence{Runs: store, Events: store},
		close:       func(context.Context) error { return client.Close() },
	}, nil
}

func openMongo(ctx context.Context, cfg JournalConfig) (*Journal, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Join(
			fmt.Errorf("ping mongo: %w", err),
			client.Disconnect(context.WithoutCancel(ctx)),
		)
	}

	store := persistence.NewMongoStore(client, cfg.Database)
	return &Journal{
		Driver:      DriverMongo,
		Persistence: persistence.Persistence{Runs: store, Events: store},
		close:       client.Disconnect,
	}, nil
}
