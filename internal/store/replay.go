package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/queryir"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Transitions int
	LastSeq     int64
	Active      int
}

// Replay rebuilds an in-memory ledger from the journal. The returned store
// journals further commits back to s, so allocation of seq and contract ids
// resumes where the journal left off.
//
// After restoring, the journal's active set is compared with the replayed
// one; any difference means the journal was edited outside AppendTransition
// and is reported as ledger.ErrCorruptJournal.
func (s *Store) Replay(ctx context.Context, opts ...ledger.Option) (*ledger.Store, ReplayResult, error) {
	transitions, err := s.ReadTransitions(ctx, 0)
	if err != nil {
		return nil, ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	l := ledger.New(append(opts, ledger.WithJournal(s))...)
	if err := l.Restore(transitions); err != nil {
		return nil, ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	snap := l.Snapshot()
	if err := s.VerifyActiveSet(ctx, snap); err != nil {
		return nil, ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	return l, ReplayResult{
		Transitions: len(transitions),
		LastSeq:     snap.Seq(),
		Active:      snap.Len(),
	}, nil
}

// VerifyActiveSet checks that the journal's active contracts are exactly
// the snapshot's, template by template.
func (s *Store) VerifyActiveSet(ctx context.Context, snap *ledger.Snapshot) error {
	journaled, err := s.ActiveTemplates(ctx)
	if err != nil {
		return err
	}

	templates := journaled
	for _, c := range snap.All() {
		if !slices.Contains(templates, c.Template) {
			templates = append(templates, c.Template)
		}
	}

	for _, tmpl := range templates {
		rows, err := s.ReadActiveContracts(ctx, queryir.Select{Template: tmpl})
		if err != nil {
			return err
		}
		want := contractIDs(snap.Active(tmpl))
		got := contractIDs(rows)
		if !slices.Equal(want, got) {
			return fmt.Errorf("%w: template %s active in journal %v, in memory %v",
				ledger.ErrCorruptJournal, tmpl, got, want)
		}
	}
	return nil
}

func contractIDs(cs []ir.Contract) []ir.ContractID {
	ids := make([]ir.ContractID, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
