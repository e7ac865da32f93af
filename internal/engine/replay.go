package engine

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/registry"
	"github.com/roach88/ledgerd/internal/store"
)

// Recover rebuilds an engine from a journal.
//
// The journal must have been written under the same template catalogue:
// transition functions are not re-run on replay, but a later exercise of a
// replayed contract would run today's code against yesterday's payload.
// Each journaled transition is verified (seq continuity, at-most-once
// consumption, content address) before it is applied, and the journal's
// active set must equal the replayed one. Further commits go to the same
// journal.
func Recover(ctx context.Context, reg *registry.Registry, journal *store.Store, opts ...Option) (*Engine, store.ReplayResult, error) {
	if err := journal.BindCatalogue(ctx, reg.Hash()); err != nil {
		return nil, store.ReplayResult{}, fmt.Errorf("recover: %w", err)
	}

	e := New(reg, nil, opts...)
	l, res, err := journal.Replay(ctx, ledger.WithLogger(e.logger), ledger.WithKeys(reg.Key))
	if err != nil {
		return nil, store.ReplayResult{}, fmt.Errorf("recover: %w", err)
	}
	e.ledger = l

	e.logger.Info("engine recovered",
		"transitions", res.Transitions,
		"seq", res.LastSeq,
		"active", res.Active,
		"catalogue", reg.Hash(),
	)
	return e, res, nil
}
