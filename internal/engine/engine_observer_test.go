package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jfet97/perform/pkg/api"
)

// fakeObserver records all calls from the engine so we can assert on them.
type fakeObserver struct {
	mu sync.Mutex

	starts    []string
	attempts  []int
	errors    []api.ErrorContext
	decisions []api.DecisionKind
	finished  []api.Status
}

func (o *fakeObserver) OnRunStart(ctx context.Context, run *api.Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, run.Name)
}

func (o *fakeObserver) OnAttemptStart(ctx context.Context, run *api.Run, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempt)
}

func (o *fakeObserver) OnError(ctx context.Context, run *api.Run, ec api.ErrorContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, ec)
}

func (o *fakeObserver) OnDecision(ctx context.Context, run *api.Run, d api.Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d.Kind)
}

func (o *fakeObserver) OnRunFinished(ctx context.Context, run *api.Run, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, run.Status)
}

func TestObserver_SeesEveryTransition(t *testing.T) {
	obs := &fakeObserver{}
	eng := NewInMemoryEngine(WithObserver(obs))

	tries := 0
	eng.Execute(context.Background(), bind("observed",
		func(ctx context.Context, y api.Yielder) error {
			tries++
			y.Yield(func() error { return errors.New("soft") })
			if tries == 1 {
				return errors.New("hard")
			}
			return nil
		},
		func(ctx context.Context, ec api.ErrorContext, c api.Controls) {
			if ec.Recoverable {
				c.Recover(nil)
				return
			}
			c.Restart()
		}, nil))

	require.Equal(t, []string{"observed"}, obs.starts)
	require.Equal(t, []int{1, 2}, obs.attempts)
	require.Len(t, obs.errors, 3)
	require.Equal(t, []api.DecisionKind{
		api.DecisionRecover,
		api.DecisionRestart,
		api.DecisionRecover,
	}, obs.decisions)
	require.Equal(t, []api.Status{api.StatusCompleted}, obs.finished)
}

func TestObserver_BasicMetrics(t *testing.T) {
	metrics := &api.BasicMetrics{}
	eng := NewInMemoryEngine(WithObserver(metrics))

	calls := 0
	eng.Execute(context.Background(), bind("metrics-ok",
		func(ctx context.Context, y api.Yielder) error {
			y.Yield(flaky(&calls, 1, nil))
			return nil
		},
		func(ctx context.Context, ec api.ErrorContext, c api.Controls) {
			require.NoError(t, c.Retry())
		}, nil))

	eng.Execute(context.Background(), bind("metrics-bad",
		func(ctx context.Context, y api.Yielder) error { return errors.New("bad") },
		noHandler, nil))

	snap := metrics.Snapshot()
	require.EqualValues(t, 2, snap.RunsStarted)
	require.EqualValues(t, 1, snap.RunsCompleted)
	require.EqualValues(t, 1, snap.RunsAbsorbed)
	require.EqualValues(t, 0, snap.RunsInFlight)
	require.EqualValues(t, 1, snap.RecoverableErrors)
	require.EqualValues(t, 1, snap.UnrecoverableErrors)
	require.EqualValues(t, 1, snap.RetriesSucceeded)
	require.EqualValues(t, 1, snap.Unhandled)
}

func TestLogger_ReportsHandlerPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	eng := NewInMemoryEngine(WithLogger(logger))

	eng.Execute(context.Background(), bind("noisy",
		func(ctx context.Context, y api.Yielder) error { return errors.New("x") },
		func(ctx context.Context, ec api.ErrorContext, c api.Controls) { panic("oops") },
		nil))

	out := buf.String()
	require.True(t, strings.Contains(out, "handler panicked"), out)
	require.True(t, strings.Contains(out, "oops"), out)
}

func TestBackoff_SpacesRetries(t *testing.T) {
	eng := NewInMemoryEngine(WithBackoff(api.BackoffPolicy{
		InitialBackoff: 5 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     20 * time.Millisecond,
	}))

	var stamps []time.Time
	eng.Execute(context.Background(), bind("backoff",
		func(ctx context.Context, y api.Yielder) error {
			y.Yield(func() error {
				stamps = append(stamps, time.Now())
				return errors.New("always")
			})
			return nil
		},
		func(ctx context.Context, ec api.ErrorContext, c api.Controls) {
			if len(stamps) == 1 {
				require.NoError(t, c.Retry(3))
			}
		}, nil))

	require.Len(t, stamps, 4)
	require.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 5*time.Millisecond)
	require.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 10*time.Millisecond)
	require.GreaterOrEqual(t, stamps[3].Sub(stamps[2]), 20*time.Millisecond)
}
