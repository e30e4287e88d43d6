package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/jfet97/perform/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// RunStore and EventStore backed by maps.
type InMemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]api.Run
	events map[string][]api.RunEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:   make(map[string]api.Run),
		events: make(map[string][]api.RunEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ RunStore = (*InMemoryStore)(nil)

var _ EventStore = (*InMemoryStore)(nil)

// SaveRun stores a copy of run; later mutations by the engine are only
// visible after UpdateRun.
func (s *InMemoryStore) SaveRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = *run
	return nil
}

func (s *InMemoryStore) UpdateRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}

	s.runs[run.ID] = *run
	return nil
}

func (s *InMemoryStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return &run, nil
}

func (s *InMemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Run

	for _, run := range s.runs {
		if !filter.matches(&run) {
			continue
		}
		copied := run
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})

	return result, nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[runID]
	out := make([]api.RunEvent, len(events))
	copy(out, events)
	return out, nil
}
