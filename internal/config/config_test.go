package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jfet97/perform/internal/persistence"
	"github.com/jfet97/perform/pkg/api"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, DriverMemory, cfg.Journal.Driver)
	require.Equal(t, 4, cfg.Runner.Workers)
	require.Equal(t, api.BackoffPolicy{Multiplier: 2}, cfg.Backoff())
	require.NoError(t, cfg.Validate())
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: DEBUG
  format: json
journal:
  driver: sqlite
  dsn: file:perform.db
retry:
  initial_backoff: 50ms
  max_backoff: 2s
runner:
  workers: 8
`))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, DriverSQLite, cfg.Journal.Driver)
	require.Equal(t, "file:perform.db", cfg.Journal.DSN)
	require.Equal(t, 8, cfg.Runner.Workers)

	// Multiplier keeps its default.
	require.Equal(t, api.BackoffPolicy{
		InitialBackoff: 50 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     2 * time.Second,
	}, cfg.Backoff())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "journal:\n  driver: memory\n  colour: blue\n",
		"unknown driver":    "journal:\n  driver: cassandra\n",
		"missing dsn":       "journal:\n  driver: postgres\n",
		"bad level":         "log:\n  level: loud\n",
		"bad format":        "log:\n  format: xml\n",
		"negative backoff":  "retry:\n  initial_backoff: -1s\n",
		"negative workers":  "runner:\n  workers: -2\n",
		"bad duration":      "retry:\n  max_backoff: soon\n",
		"negative capacity": "runner:\n  queue_capacity: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "perform.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner:\n  workers: 2\n"), 0o644))

	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Runner.Workers)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultYAML_RoundTrips(t *testing.T) {
	cfg, err := Parse([]byte(DefaultYAML()))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "run_id", "r1")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"run_id":"r1"`)

	buf.Reset()
	NewLogger(LogConfig{Level: "debug"}, &buf).Debug("text line")
	require.True(t, strings.Contains(buf.String(), "msg=\"text line\""))
}

func TestOpenJournal_InProcess(t *testing.T) {
	ctx := context.Background()

	for _, cfg := range []JournalConfig{
		{Driver: DriverNone},
		{Driver: DriverMemory},
		{Driver: DriverSQLite, DSN: "file:" + filepath.Join(t.TempDir(), "journal.db")},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			j, err := OpenJournal(ctx, cfg)
			require.NoError(t, err)
			t.Cleanup(func() { require.NoError(t, j.Close(ctx)) })

			require.Equal(t, cfg.Driver, j.Driver)
			require.NotNil(t, j.Persistence.Runs)
			require.NotNil(t, j.Persistence.Events)

			run := &api.Run{ID: "r1", Name: "journal", Status: api.StatusRunning, StartedAt: time.Now()}
			require.NoError(t, j.Persistence.Runs.SaveRun(ctx, run))

			_, err = j.Persistence.Runs.GetRun(ctx, "r1")
			if cfg.Driver == DriverNone {
				require.ErrorIs(t, err, persistence.ErrRunNotFound)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestOpenJournal_UnknownDriver(t *testing.T) {
	_, err := OpenJournal(context.Background(), JournalConfig{Driver: "cassandra"})
	require.Error(t, err)
}
