package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jfet97/perform/pkg/api"
)

// SQLiteEventStore stores run events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements the interfaces.
var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, type, attempt, detail)
		VALUES (?, ?, ?, ?, ?)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Attempt,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, attempt, detail
		FROM run_events
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]api.RunEvent, error) {
	var out []api.RunEvent
	for rows.Next() {
		var (
			id      string
			atN     int64
			typ     string
			attempt int
			detail  string
		)
		if err := rows.Scan(&id, &atN, &typ, &attempt, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.RunEvent{
			RunID:   id,
			At:      time.Unix(0, atN),
			Type:    api.EventType(typ),
			Attempt: attempt,
			Detail:  detail,
		})
	}
	return out, rows.Err()
}
