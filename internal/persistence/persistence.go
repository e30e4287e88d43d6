package persistence

// Persistence bundles the two store interfaces so the engine
// can depend on a single abstraction.
type Persistence struct {
	Runs   RunStore
	Events EventStore
}

// Noop returns a Persistence that records nothing.
func Noop() Persistence {
	return Persistence{
		Runs:   NoopRunStore{},
		Events: NoopEventStore{},
	}
}

// WithDefaults fills missing stores with no-op implementations.
func (p Persistence) WithDefaults() Persistence {
	if p.Runs == nil {
		p.Runs = NoopRunStore{}
	}
	if p.Events == nil {
		p.Events = NoopEventStore{}
	}
	return p
}
