package persistence

import (
	"context"

	"github.com/jfet97/perform/pkg/api"
)

// EventStore is an append-only history store for run events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.RunEvent) error
	ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	return nil, nil
}

// NoopRunStore keeps no runs. Lookups always fail with ErrRunNotFound.
type NoopRunStore struct{}

func (NoopRunStore) SaveRun(ctx context.Context, run *api.Run) error   { return nil }
func (NoopRunStore) UpdateRun(ctx context.Context, run *api.Run) error { return nil }
func (NoopRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	return nil, ErrRunNotFound
}
func (NoopRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	return nil, nil
}
