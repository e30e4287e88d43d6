package api

import "time"

// EventType identifies a run history event.
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventAttemptStarted EventType = "attempt.started"
	EventErrorCaught    EventType = "error.caught"
	EventDecision       EventType = "decision"
	EventFinalized      EventType = "finalized"
	EventRunFinished    EventType = "run.finished"
)

// RunEvent is a minimal append-only history record for audit/debugging.
type RunEvent struct {
	RunID   string
	At      time.Time
	Type    EventType
	Attempt int

	// Small, human-oriented details (decision kind, error string).
	// Keep this low-volume: do NOT dump resume values here.
	Detail string
}
