package persistence

import (
	"context"
	"errors"

	"github.com/jfet97/perform/pkg/api"
)

// ErrRunNotFound is returned when a run is not found.
var ErrRunNotFound = errors.New("run not found")

// RunFilter is used to select runs from the store.
// Empty string / zero status mean "no filter" for that field.
type RunFilter struct {
	Name   string
	Status api.Status
}

// RunStore handles storage of run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *api.Run) error
	UpdateRun(ctx context.Context, run *api.Run) error
	GetRun(ctx context.Context, id string) (*api.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error)
}

// matches reports whether run passes filter.
func (f RunFilter) matches(run *api.Run) bool {
	if f.Name != "" && run.Name != f.Name {
		return false
	}
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	return true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errFromString(s string) error {
	if s == "" {
		return nil
	}
	return errors.New(s)
}
