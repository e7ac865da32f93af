package ledger

import "sync/atomic"

// Sequence is the ledger's logical clock. Every committed transition is
// stamped with a strictly increasing seq, so ordering never depends on
// wall time and a replayed journal reproduces the same order.
//
// Safe for concurrent use; Store only advances it under its write lock.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence positioned at start.
// Used by Restore to resume after the last replayed transition.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next advances the sequence and returns the new value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued value without advancing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
