package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jfet97/perform/pkg/api"
)

func sampleRun(id, name string, startedAt time.Time) *api.Run {
	return &api.Run{
		ID:        id,
		Name:      name,
		Mode:      api.ModeAsync,
		Status:    api.StatusRunning,
		Attempts:  1,
		StartedAt: startedAt,
	}
}

// checkRunStore drives a RunStore through the full run lifecycle.
func checkRunStore(t *testing.T, store RunStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	run := sampleRun("run-1", "fetch", base)
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "fetch", got.Name)
	require.Equal(t, api.ModeAsync, got.Mode)
	require.Equal(t, api.StatusRunning, got.Status)
	require.Equal(t, 1, got.Attempts)
	require.True(t, got.StartedAt.Equal(base))
	require.True(t, got.FinishedAt.IsZero())
	require.NoError(t, got.Err)

	run.Status = api.StatusAbsorbed
	run.Attempts = 3
	run.Restarts = 2
	run.Retries = 1
	run.Recoveries = 0
	run.Err = errors.New("boom")
	run.FinishedAt = base.Add(time.Second)
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusAbsorbed, got.Status)
	require.Equal(t, 3, got.Attempts)
	require.Equal(t, 2, got.Restarts)
	require.Equal(t, 1, got.Retries)
	require.EqualError(t, got.Err, "boom")
	require.True(t, got.FinishedAt.Equal(base.Add(time.Second)))

	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)

	require.ErrorIs(t, store.UpdateRun(ctx, sampleRun("missing", "x", base)), ErrRunNotFound)

	second := sampleRun("run-2", "fetch", base.Add(2*time.Second))
	second.Status = api.StatusCompleted
	require.NoError(t, store.SaveRun(ctx, second))

	third := sampleRun("run-3", "parse", base.Add(3*time.Second))
	require.NoError(t, store.SaveRun(ctx, third))

	all, err := store.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"run-1", "run-2", "run-3"}, runIDs(all))

	byName, err := store.ListRuns(ctx, RunFilter{Name: "fetch"})
	require.NoError(t, err)
	require.Equal(t, []string{"run-1", "run-2"}, runIDs(byName))

	byStatus, err := store.ListRuns(ctx, RunFilter{Status: api.StatusRunning})
	require.NoError(t, err)
	require.Equal(t, []string{"run-3"}, runIDs(byStatus))

	both, err := store.ListRuns(ctx, RunFilter{Name: "fetch", Status: api.StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, []string{"run-2"}, runIDs(both))
}

// checkEventStore verifies events come back in append order per run.
func checkEventStore(t *testing.T, store EventStore) {
	t.Helper()
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	types := []api.EventType{
		api.EventRunStarted,
		api.EventAttemptStarted,
		api.EventErrorCaught,
		api.EventDecision,
		api.EventFinalized,
		api.EventRunFinished,
	}
	for i, typ := range types {
		require.NoError(t, store.AppendEvent(ctx, api.RunEvent{
			RunID:   "run-a",
			At:      at.Add(time.Duration(i) * time.Millisecond),
			Type:    typ,
			Attempt: 1,
			Detail:  string(typ),
		}))
	}
	require.NoError(t, store.AppendEvent(ctx, api.RunEvent{RunID: "run-b", Type: api.EventRunStarted}))

	events, err := store.ListEvents(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, events, len(types))
	for i, ev := range events {
		require.Equal(t, types[i], ev.Type)
		require.Equal(t, "run-a", ev.RunID)
		require.Equal(t, 1, ev.Attempt)
		require.Equal(t, string(types[i]), ev.Detail)
	}

	other, err := store.ListEvents(ctx, "run-b")
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.False(t, other[0].At.IsZero())

	none, err := store.ListEvents(ctx, "run-none")
	require.NoError(t, err)
	require.Empty(t, none)
}

func runIDs(runs []*api.Run) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}
