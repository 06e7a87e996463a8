package battle

import "sync"

// Store owns the single BattleContext. Every access, read or write, holds
// the mutex for the duration of a closure and nothing escapes it.
type Store struct {
	mu  sync.Mutex
	ctx BattleContext
}

func NewStore() *Store {
	return &Store{}
}

// Read runs fn with exclusive access. fn must not retain bc or any slice
// reachable from it.
func (s *Store) Read(fn func(bc *BattleContext)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ctx)
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() *BattleContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.Clone()
}

func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.Phase
}

func (s *Store) update(fn func(bc *BattleContext)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ctx)
}
