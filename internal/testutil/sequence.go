package testutil

import "sync"

// Sequence is a thread-safe step counter used to number trace entries.
//
// The first call to Next returns 1. Reset starts over so one scenario can
// be replayed with identical numbering.
type Sequence struct {
	mu  sync.Mutex
	seq int64
}

// NewSequence creates a sequence at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the next step number.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current returns the last step number handed out.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset returns the sequence to 0.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
