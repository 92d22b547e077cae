package state

import "sync"

// Store is the single source of truth for the console. It is safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	state     State
	gens      map[Domain]uint64
	listeners map[int]func(State)
	nextID    int
	history   []Action
	record    bool
}

// NewStore returns a store seeded with Initial().
func NewStore() *Store {
	return &Store{
		state:     Initial(),
		gens:      map[Domain]uint64{},
		listeners: map[int]func(State){},
	}
}

// Record turns on action history capture for replay.
func (s *Store) Record() {
	s.mu.Lock()
	s.record = true
	s.mu.Unlock()
}

// History returns a copy of the recorded actions.
func (s *Store) History() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.history...)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and notifies subscribers.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	next := s.applyLocked(a)
	fns := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return next
}

// Begin stamps a new request for d. Any earlier stamp for d becomes stale.
func (s *Store) Begin(d Domain) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[d]++
	return s.gens[d]
}

// Commit applies a only if gen is still the latest stamp issued for d.
// It reports whether the action was applied.
func (s *Store) Commit(d Domain, gen uint64, a Action) bool {
	s.mu.Lock()
	if s.gens[d] != gen {
		s.mu.Unlock()
		return false
	}
	next := s.applyLocked(a)
	fns := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return true
}

// Subscribe registers fn to receive every new snapshot. Snapshots may be
// delivered out of order across goroutines; compare State.Version.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) applyLocked(a Action) State {
	s.state = Reduce(s.state, a)
	if s.record {
		s.history = append(s.history, a)
	}
	return s.state
}

func (s *Store) listenersLocked() []func(State) {
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}
