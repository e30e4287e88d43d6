package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jfet97/perform/pkg/api"
)

// negotiate settles the failure of a deferred computation with the
// handler. It returns the decision together with the newest error, which
// differs from err once retries have failed.
func (x *execution) negotiate(ctx context.Context, item api.Item, err error) (api.Decision, error) {
	for {
		c := x.consult(ctx, api.ErrorContext{Err: err, Recoverable: true})

		switch c.request {
		case requestRestart:
			return x.decide(ctx, api.Decision{Kind: api.DecisionRestart}), err

		case requestRecover:
			x.run.Recoveries++
			return x.decide(ctx, api.Decision{Kind: api.DecisionRecover, Value: c.value}), err

		case requestRetry:
			if c.attempts == 0 {
				return x.decide(ctx, api.Decision{Kind: api.DecisionUnhandled}), err
			}
			v, retryErr := x.retry(ctx, item, c.attempts)
			if retryErr == nil {
				return x.decide(ctx, api.Decision{Kind: api.DecisionRetrySucceeded, Value: v}), nil
			}
			// Budget exhausted: ask again with the newest error.
			err = retryErr

		default:
			return x.decide(ctx, api.Decision{Kind: api.DecisionUnhandled}), err
		}
	}
}

// consult invokes the handler once with fresh controls and returns them
// sealed. A panicking handler counts as having requested nothing.
func (x *execution) consult(ctx context.Context, ec api.ErrorContext) *controls {
	e := x.engine
	e.observer.OnError(ctx, x.run, ec)
	e.record(ctx, x.run, api.EventErrorCaught, x.run.Attempts,
		fmt.Sprintf("recoverable=%t: %v", ec.Recoverable, ec.Err))

	c := newControls(ec.Recoverable)
	defer c.seal()

	handler := x.binding.Handler
	if handler == nil {
		return c
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("handler panicked",
					"run_id", x.run.ID,
					"task", x.run.Name,
					"panic", r,
				)
				c.discard()
			}
		}()
		handler(ctx, ec, c)
	}()

	return c
}

// retry re-invokes item up to attempts times, pausing between invocations
// according to the engine backoff. A nil error means one invocation
// succeeded with the returned value.
func (x *execution) retry(ctx context.Context, item api.Item, attempts int) (any, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		x.pause(ctx, i)
		x.run.Retries++

		v, err := item.Evaluate(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// pause waits before the retry with the given index. A done context cuts
// the wait short but never aborts the retry.
func (x *execution) pause(ctx context.Context, retry int) {
	delay := x.engine.backoff.Delay(retry)
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (x *execution) decide(ctx context.Context, d api.Decision) api.Decision {
	e := x.engine
	e.observer.OnDecision(ctx, x.run, d)
	e.record(ctx, x.run, api.EventDecision, x.run.Attempts, d.Kind.String())
	e.updateRun(ctx, x.run)
	return d
}
