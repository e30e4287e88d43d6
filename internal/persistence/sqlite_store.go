package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jfet97/perform/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given
// database and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
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
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);`,
	)
	return err
}

const runColumns = `id, name, mode, status, attempts, restarts, retries, recoveries, error, started_at, finished_at`

func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *api.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteRunStore) UpdateRun(ctx context.Context, run *api.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET name = ?, mode = ?, status = ?, attempts = ?, restarts = ?, retries = ?,
		    recoveries = ?, error = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
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

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?`,
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

func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	query, args := listRunsQuery(filter, func(int) string { return "?" })
	return queryRuns(ctx, s.db, query, args)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.Run, error) {
	var (
		run        api.Run
		mode       string
		status     string
		errStr     sql.NullString
		startedAt  int64
		finishedAt int64
	)
	if err := row.Scan(
		&run.ID, &run.Name, &mode, &status,
		&run.Attempts, &run.Restarts, &run.Retries, &run.Recoveries,
		&errStr, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}

	run.Mode = api.Mode(mode)
	run.Status = api.Status(status)
	if errStr.Valid {
		run.Err = errFromString(errStr.String)
	}
	run.StartedAt = fromUnixNano(startedAt)
	run.FinishedAt = fromUnixNano(finishedAt)
	return &run, nil
}

// listRunsQuery builds the filtered SELECT shared by the SQL stores.
// placeholder renders the n-th (1-based) bind parameter.
func listRunsQuery(filter RunFilter, placeholder func(n int) string) (string, []any) {
	query := `
		SELECT ` + runColumns + `
		FROM runs`
	var args []any
	var clauses []string

	if filter.Name != "" {
		args = append(args, filter.Name)
		clauses = append(clauses, "name = "+placeholder(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, "status = "+placeholder(len(args)))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	return query + " ORDER BY started_at ASC", args
}

func queryRuns(ctx context.Context, db *sql.DB, query string, args []any) ([]*api.Run, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
