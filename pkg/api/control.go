package api

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrInvalidTaskKind is raised when a task is not a definition or a
	// body of the expected mode.
	ErrInvalidTaskKind = errors.New("invalid task kind")

	// ErrInvalidHandler is raised when Catch receives a nil handler.
	ErrInvalidHandler = errors.New("invalid handler")

	// ErrInvalidFinalizer is raised when Finally receives a nil finalizer.
	ErrInvalidFinalizer = errors.New("invalid finalizer")

	// ErrInvalidRetryArgument is returned by Controls.Retry for a malformed
	// attempt count.
	ErrInvalidRetryArgument = errors.New("invalid retry argument")

	// ErrUnsupportedYield is the failure of a yielded function whose
	// signature is not a computation.
	ErrUnsupportedYield = errors.New("unsupported yielded function")
)

// Forever makes Controls.Retry keep re-invoking the failed computation
// until it succeeds.
const Forever = math.MaxInt

// ErrorContext describes a failure shown to a Handler.
type ErrorContext struct {
	// Err is the failure. Panics with non-error values arrive as *PanicError.
	Err error

	// Recoverable is true when Err came from evaluating a yielded
	// computation and false when it came from the task body itself.
	Recoverable bool
}

// Controls are the recovery directives offered to a Handler. Only the
// strongest directive issued during one handler call takes effect:
// Restart beats Recover, Recover beats Retry.
//
// For unrecoverable errors Recover and Retry are inert. Controls stop
// having any effect once the handler returns.
type Controls interface {
	// Recover resumes the task with value instead of the failed result.
	Recover(value any)

	// Retry re-invokes the failed computation up to maxAttempts more times
	// (one when omitted, unbounded for Forever). If every attempt fails the
	// handler is consulted again with the latest error.
	Retry(maxAttempts ...int) error

	// Restart discards the current execution and starts the task again
	// from the beginning.
	Restart()
}

// Handler negotiates a failure through the given controls.
type Handler func(ctx context.Context, ec ErrorContext, c Controls)

// Finalizer runs once when a run terminates.
type Finalizer func(ctx context.Context)

// DecisionKind tags a Decision.
type DecisionKind int

const (
	DecisionNone DecisionKind = iota
	DecisionRestart
	DecisionRecover
	DecisionRetrySucceeded
	DecisionUnhandled
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionRestart:
		return "restart"
	case DecisionRecover:
		return "recover"
	case DecisionRetrySucceeded:
		return "retry-succeeded"
	case DecisionUnhandled:
		return "unhandled"
	default:
		return "none"
	}
}

// Decision is the outcome of negotiating a failure with the handler.
// Value is the resume value for DecisionRecover and DecisionRetrySucceeded.
type Decision struct {
	Kind  DecisionKind
	Value any
}
