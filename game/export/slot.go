package export

import "sync"

// Slot is a single-value mailbox. Put overwrites whatever is unclaimed;
// Take returns the value and empties the slot.
type Slot[T any] struct {
	mu  sync.Mutex
	v   T
	set bool
}

func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v, s.set = v, true
}

func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.v, s.set
	var zero T
	s.v, s.set = zero, false
	return v, ok
}
