package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jfet97/perform/pkg/api"
)

// PostgresStore is a RunStore and EventStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ RunStore   = (*PostgresStore)(nil)
	_ EventStore = (*PostgresStore)(nil)
)

// NewPostgresStore initializes the required schema in the given
// database and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			restarts INTEGER NOT NULL,
			retries INTEGER NOT NULL,
			recoveries INTEGER NOT NULL,
			error TEXT,
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_events (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			at BIGINT NOT NULL,
			type TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id);
	`)
	return err
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *api.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID,
		run.Name,
		string(run.Mode),
		string(run.Status),
		run.Attempts,
		run.Restarts,
		run.Retries,
		run.Recoveries,
		errString(run.Err),
		unixNano(run.StartedAt),
		unixNano(run.FinishedAt),
	)
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *api.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET name = $1, mode = $2, status = $3, attempts = $4, restarts = $5, retries = $6,
		    recoveries = $7, error = $8, started_at = $9, finished_at = $10
		WHERE id = $11`,
		run.Name,
		string(run.Mode),
		string(run.Status),
		run.Attempts,
		run.Restarts,
		run.Retries,
		run.Recoveries,
		errString(run.Err),
		unixNano(run.StartedAt),
		unixNano(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = $1`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	query, args := listRunsQuery(filter, func(n int) string { return fmt.Sprintf("$%d", n) })
	return queryRuns(ctx, s.db, query, args)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, type, attempt, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Attempt,
		ev.Detail,
	)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, attempt, detail
		FROM run_events
		WHERE run_id = $1
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}
