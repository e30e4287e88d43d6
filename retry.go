package perform

import "time"

// Backoff policies for WithBackoff. The engine waits Delay(i) before the
// i-th re-invocation of a failed computation requested through
// Controls.Retry.

// ExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	perform.NewInMemoryEngine(perform.WithBackoff(
//	    perform.ExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second),
//	))
func ExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) BackoffPolicy {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if max < 0 {
		max = 0
	}
	return BackoffPolicy{
		InitialBackoff: initial,
		Multiplier:     multiplier,
		MaxBackoff:     max,
	}
}

// ConstantBackoff waits the same delay before every retry.
//
// This is equivalent to an exponential backoff with multiplier 1.0 and
// no max cap.
func ConstantBackoff(delay time.Duration) BackoffPolicy {
	return BackoffPolicy{
		InitialBackoff: delay,
		Multiplier:     1.0,
	}
}

// Immediate disables any sleep between retries. It is the engine default.
func Immediate() BackoffPolicy {
	return BackoffPolicy{}
}
