package ledger

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ledgerd/internal/ir"
)

// ErrCorruptJournal is returned by Restore when a journal cannot have been
// produced by Commit.
var ErrCorruptJournal = errors.New("corrupt journal")

// History returns the lineage of a contract, oldest first: the originating
// create, each exercise through which its predecessors were succeeded, and
// finally the transition that archived it, if any. A contract's predecessor
// is the contract of its own template consumed by the transition that
// created it, or failing that the consumed target. Fails NotFound.
func (s *Store) History(id ir.ContractID) ([]ir.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.contracts[id]; !ok {
		return nil, ir.Errorf(ir.ErrNotFound, "contract not found").OnContract(id)
	}

	var chain []ir.Transition
	cur := id
	for {
		idx, ok := s.creator[cur]
		if !ok {
			break
		}
		t := s.log[idx]
		chain = append(chain, t.Clone())
		prev, ok := s.predecessor(t, cur)
		if !ok {
			break
		}
		cur = prev
	}
	slices.Reverse(chain)

	if idx, ok := s.archiver[id]; ok {
		chain = append(chain, s.log[idx].Clone())
	}
	return chain, nil
}

// predecessor picks the contract cur succeeded in t. Consumed contracts are
// always older than what t produced. Caller holds mu.
func (s *Store) predecessor(t ir.Transition, cur ir.ContractID) (ir.ContractID, bool) {
	if t.Kind != ir.TransitionExercise {
		return 0, false
	}
	tmpl := s.contracts[cur].Template
	for _, id := range t.Consumed {
		if id < cur && s.contracts[id].Template == tmpl {
			return id, true
		}
	}
	if t.Target != 0 && t.Target < cur && slices.Contains(t.Consumed, t.Target) {
		return t.Target, true
	}
	return 0, false
}

// Restore rebuilds an empty store from journaled transitions. Each one is
// verified before it is applied: seq continues the sequence, consumed
// contracts are still active, produced ids continue the id sequence, and
// the exercised contract of a non-consuming choice is active, produced keys
// are free, and the content address recomputes. Nothing is written to the
// journal.
func (s *Store) Restore(transitions []ir.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.log) > 0 {
		return fmt.Errorf("restore: store already holds %d transitions", len(s.log))
	}

	for _, t := range transitions {
		if err := s.verify(t); err != nil {
			return fmt.Errorf("restore seq %d: %w", t.Seq, err)
		}
		t = t.Clone()
		for i := range t.Produced {
			t.Produced[i].Status = ir.StatusActive
			t.Produced[i].ArchivedBy = ""
			t.Produced[i].CreatedBy = t.ID
			t.Produced[i].CreatedSeq = t.Seq
		}
		s.apply(t)
	}

	s.logger.Info("ledger restored",
		"transitions", len(transitions),
		"seq", s.seq.Current(),
		"last_contract", int64(s.lastID),
	)
	return nil
}

// verify checks one journaled transition against current state. Caller holds mu.
func (s *Store) verify(t ir.Transition) error {
	if want := s.seq.Current() + 1; t.Seq != want {
		return fmt.Errorf("%w: seq %d, expected %d", ErrCorruptJournal, t.Seq, want)
	}
	live, err := s.liveConsumed(t.Consumed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptJournal, err)
	}
	if t.Kind == ir.TransitionExercise && t.Target != 0 {
		if err := s.liveRequired(live, []ir.ContractID{t.Target}); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptJournal, err)
		}
	}
	drafts := make([]Draft, len(t.Produced))
	for i, c := range t.Produced {
		drafts[i] = Draft{Template: c.Template, Payload: c.Payload}
	}
	if err := s.checkKeys(t.Consumed, drafts); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptJournal, err)
	}
	for i, c := range t.Produced {
		if want := s.lastID + ir.ContractID(i+1); c.ID != want {
			return fmt.Errorf("%w: produced %s, expected %s", ErrCorruptJournal, c.ID, want)
		}
	}
	id, err := ir.TransitionID(t)
	if err != nil {
		return err
	}
	if id != t.ID {
		return fmt.Errorf("%w: transition id does not match its content", ErrCorruptJournal)
	}
	return nil
}
