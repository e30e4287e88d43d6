package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver counts callbacks to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	starts    int
	attempts  []int
	errors    []ErrorContext
	decisions []DecisionKind
	finishes  int

	lastRun *Run
}

func (o *testObserver) OnRunStart(ctx context.Context, run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.lastRun = run
}

func (o *testObserver) OnAttemptStart(ctx context.Context, run *Run, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempt)
}

func (o *testObserver) OnError(ctx context.Context, run *Run, ec ErrorContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, ec)
}

func (o *testObserver) OnDecision(ctx context.Context, run *Run, d Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d.Kind)
}

func (o *testObserver) OnRunFinished(ctx context.Context, run *Run, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finishes++
	o.lastRun = run
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler       { return h }

func (h *recordingHandler) attrs(i int) map[string]slog.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := map[string]slog.Value{}
	h.records[i].Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value
		return true
	})
	return out
}

// driveObserver plays one run with a restart and a recovery.
func driveObserver(obs Observer, run *Run) {
	ctx := context.Background()
	obs.OnRunStart(ctx, run)
	obs.OnAttemptStart(ctx, run, 1)
	obs.OnError(ctx, run, ErrorContext{Err: errors.New("body"), Recoverable: false})
	obs.OnDecision(ctx, run, Decision{Kind: DecisionRestart})
	obs.OnAttemptStart(ctx, run, 2)
	obs.OnError(ctx, run, ErrorContext{Err: errors.New("io"), Recoverable: true})
	obs.OnDecision(ctx, run, Decision{Kind: DecisionRecover, Value: 1})
	run.Status = StatusCompleted
	obs.OnRunFinished(ctx, run, 10*time.Millisecond)
}

//
// Tests
//

func TestCompositeObserver_FansOut(t *testing.T) {
	a := &testObserver{}
	b := &testObserver{}

	obs := NewCompositeObserver(a, nil, b)
	run := &Run{ID: "r1", Name: "task"}
	driveObserver(obs, run)

	for i, o := range []*testObserver{a, b} {
		if o.starts != 1 || o.finishes != 1 {
			t.Fatalf("observer %d: starts=%d finishes=%d", i, o.starts, o.finishes)
		}
		if len(o.attempts) != 2 || o.attempts[1] != 2 {
			t.Fatalf("observer %d: unexpected attempts %v", i, o.attempts)
		}
		if len(o.errors) != 2 || o.errors[0].Recoverable || !o.errors[1].Recoverable {
			t.Fatalf("observer %d: unexpected errors %+v", i, o.errors)
		}
		if len(o.decisions) != 2 || o.decisions[0] != DecisionRestart || o.decisions[1] != DecisionRecover {
			t.Fatalf("observer %d: unexpected decisions %v", i, o.decisions)
		}
		if o.lastRun != run {
			t.Fatalf("observer %d: did not receive the run", i)
		}
	}
}

func TestNewCompositeObserver_Collapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver for no observers")
	}
	if _, ok := NewCompositeObserver(nil, nil).(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver for nil observers")
	}

	single := &testObserver{}
	if got := NewCompositeObserver(nil, single); got != Observer(single) {
		t.Fatalf("expected the single observer to be returned as is")
	}
}

func TestLoggingObserver_Records(t *testing.T) {
	h := &recordingHandler{}
	obs := NewLoggingObserver(slog.New(h))

	run := &Run{ID: "r1", Name: "task", Mode: ModeAsync}
	driveObserver(obs, run)

	wantMsgs := []string{
		"run_start", "attempt_start", "error_caught", "decision",
		"attempt_start", "error_caught", "decision", "run_finished",
	}
	if len(h.records) != len(wantMsgs) {
		t.Fatalf("expected %d records, got %d", len(wantMsgs), len(h.records))
	}
	for i, msg := range wantMsgs {
		if h.records[i].Message != msg {
			t.Fatalf("record %d: expected %q, got %q", i, msg, h.records[i].Message)
		}
	}

	if got := h.attrs(0)["mode"].String(); got != "async" {
		t.Fatalf("run_start mode = %q", got)
	}
	if got := h.attrs(3)["decision"].String(); got != "restart" {
		t.Fatalf("decision = %q", got)
	}
	if h.records[2].Level != slog.LevelWarn {
		t.Fatalf("error_caught should log at WARN, got %v", h.records[2].Level)
	}
	if got := h.attrs(7)["status"].String(); got != string(StatusCompleted) {
		t.Fatalf("run_finished status = %q", got)
	}
}

func TestLoggingObserver_AbsorbedRunWarns(t *testing.T) {
	h := &recordingHandler{}
	obs := NewLoggingObserver(slog.New(h))

	run := &Run{ID: "r2", Name: "task", Status: StatusAbsorbed, Err: errors.New("left")}
	obs.OnRunFinished(context.Background(), run, time.Millisecond)

	if h.records[0].Level != slog.LevelWarn {
		t.Fatalf("expected WARN for absorbed run, got %v", h.records[0].Level)
	}
}

func TestNewLoggingObserver_DefaultLogger(t *testing.T) {
	obs := NewLoggingObserver(nil).(*LoggingObserver)
	if obs.Logger == nil {
		t.Fatalf("expected default logger")
	}
}

func TestBasicMetrics_Snapshot(t *testing.T) {
	m := &BasicMetrics{}

	driveObserver(m, &Run{ID: "r1"})

	ctx := context.Background()
	absorbed := &Run{ID: "r2", Status: StatusAbsorbed}
	m.OnRunStart(ctx, absorbed)
	m.OnAttemptStart(ctx, absorbed, 1)
	m.OnDecision(ctx, absorbed, Decision{Kind: DecisionUnhandled})
	m.OnRunFinished(ctx, absorbed, 30*time.Millisecond)

	m.OnRunStart(ctx, &Run{ID: "r3"})

	s := m.Snapshot()
	if s.RunsStarted != 3 || s.RunsCompleted != 1 || s.RunsAbsorbed != 1 || s.RunsInFlight != 1 {
		t.Fatalf("unexpected run counters: %+v", s)
	}
	if s.Restarts != 1 {
		t.Fatalf("expected 1 restart, got %d", s.Restarts)
	}
	if s.RecoverableErrors != 1 || s.UnrecoverableErrors != 1 {
		t.Fatalf("unexpected error counters: %+v", s)
	}
	if s.Recovered != 1 || s.Unhandled != 1 || s.RetriesSucceeded != 0 {
		t.Fatalf("unexpected decision counters: %+v", s)
	}
	if s.AvgRunDuration != 20*time.Millisecond {
		t.Fatalf("expected avg 20ms, got %s", s.AvgRunDuration)
	}
}
