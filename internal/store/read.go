package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/queryir"
	"github.com/roach88/ledgerd/internal/querysql"
)

// ReadTransitions returns every transition with seq > afterSeq, ordered by
// seq, with consumed ids in their original order and produced contracts as
// they were at commit time (active, no archival).
//
// Returns an empty slice (not nil) if there is nothing to read.
func (s *Store) ReadTransitions(ctx context.Context, afterSeq int64) ([]ir.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, command_id, ts, acting_party, kind, template, choice, target, args, result
		FROM transitions
		WHERE seq > ?
		ORDER BY seq ASC
	`, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []ir.Transition{}
	index := make(map[int64]int)
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		index[t.Seq] = len(transitions)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	if len(transitions) == 0 {
		return transitions, nil
	}

	if err := s.attachConsumed(ctx, afterSeq, transitions, index); err != nil {
		return nil, err
	}
	if err := s.attachProduced(ctx, afterSeq, transitions, index); err != nil {
		return nil, err
	}
	return transitions, nil
}

// attachConsumed fills Consumed for a batch in one query.
func (s *Store) attachConsumed(ctx context.Context, afterSeq int64, ts []ir.Transition, index map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, contract_id
		FROM consumptions
		WHERE seq > ?
		ORDER BY seq ASC, position ASC
	`, afterSeq)
	if err != nil {
		return fmt.Errorf("query consumptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq, id int64
		if err := rows.Scan(&seq, &id); err != nil {
			return fmt.Errorf("scan consumption: %w", err)
		}
		if i, ok := index[seq]; ok {
			ts[i].Consumed = append(ts[i].Consumed, ir.ContractID(id))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate consumptions: %w", err)
	}
	return nil
}

// attachProduced fills Produced for a batch in one query.
func (s *Store) attachProduced(ctx context.Context, afterSeq int64, ts []ir.Transition, index map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+querysql.ContractColumns+`
		FROM contracts c JOIN transitions t ON t.seq = c.created_seq
		WHERE c.created_seq > ?
		ORDER BY c.id ASC
	`, afterSeq)
	if err != nil {
		return fmt.Errorf("query produced contracts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return err
		}
		c.Status = ir.StatusActive
		if i, ok := index[c.CreatedSeq]; ok {
			ts[i].Produced = append(ts[i].Produced, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate produced contracts: %w", err)
	}
	return nil
}

// ReadContract returns one contract, active or archived. Fails NotFound.
func (s *Store) ReadContract(ctx context.Context, id ir.ContractID) (ir.Contract, error) {
	var archivedBy string
	row := s.db.QueryRowContext(ctx, `
		SELECT `+querysql.ContractColumns+`, COALESCE(a.id, '')
		FROM contracts c
		JOIN transitions t ON t.seq = c.created_seq
		LEFT JOIN transitions a ON a.seq = c.archived_seq
		WHERE c.id = ?
	`, int64(id))
	c, err := scanContract(row, &archivedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Contract{}, ir.Errorf(ir.ErrNotFound, "contract not found").OnContract(id)
	}
	if err != nil {
		return ir.Contract{}, err
	}
	c.ArchivedBy = archivedBy
	return c, nil
}

// ReadActiveContracts returns the active contracts a selection matches,
// ordered by id. The selection must be portable (no CEL expressions).
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadActiveContracts(ctx context.Context, sel queryir.Select) ([]ir.Contract, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("read active contracts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("read active contracts: %w", err)
	}
	defer rows.Close()

	out := []ir.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active contracts: %w", err)
	}
	return out, nil
}

// ActiveTemplates returns the templates with at least one active contract,
// sorted by name.
func (s *Store) ActiveTemplates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT template FROM contracts
		WHERE status = 'active'
		ORDER BY template COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query active templates: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest journaled seq, 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM transitions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransition(row scanner) (ir.Transition, error) {
	var (
		t                    ir.Transition
		ts, party, kind      string
		target               int64
		argsJSON, resultJSON string
	)
	if err := row.Scan(&t.Seq, &t.ID, &t.CommandID, &ts, &party, &kind, &t.Template, &t.Choice, &target, &argsJSON, &resultJSON); err != nil {
		return ir.Transition{}, fmt.Errorf("scan transition: %w", err)
	}

	var err error
	if t.Timestamp, err = parseTimestamp(ts); err != nil {
		return ir.Transition{}, fmt.Errorf("transition %d: %w", t.Seq, err)
	}
	if t.Args, err = unmarshalRecord("args", argsJSON); err != nil {
		return ir.Transition{}, fmt.Errorf("transition %d: %w", t.Seq, err)
	}
	if t.Result, err = unmarshalRecord("result", resultJSON); err != nil {
		return ir.Transition{}, fmt.Errorf("transition %d: %w", t.Seq, err)
	}
	t.ActingParty = ir.Party(party)
	t.Kind = ir.TransitionKind(kind)
	t.Target = ir.ContractID(target)
	t.Consumed = []ir.ContractID{}
	t.Produced = []ir.Contract{}
	return t, nil
}

// scanContract reads querysql.ContractColumns plus any extra destinations.
func scanContract(row scanner, extra ...any) (ir.Contract, error) {
	var (
		c                             ir.Contract
		id                            int64
		status                        string
		payloadJSON, sigJSON, obsJSON string
	)
	dest := append([]any{&id, &c.Template, &payloadJSON, &sigJSON, &obsJSON, &status, &c.CreatedBy, &c.CreatedSeq}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Contract{}, err
		}
		return ir.Contract{}, fmt.Errorf("scan contract: %w", err)
	}
	c.ID = ir.ContractID(id)
	c.Status = ir.Status(status)

	var err error
	if c.Payload, err = unmarshalRecord("payload", payloadJSON); err != nil {
		return ir.Contract{}, fmt.Errorf("contract %s: %w", c.ID, err)
	}
	if c.Signatories, err = unmarshalParties(sigJSON); err != nil {
		return ir.Contract{}, fmt.Errorf("contract %s: %w", c.ID, err)
	}
	if c.Observers, err = unmarshalParties(obsJSON); err != nil {
		return ir.Contract{}, fmt.Errorf("contract %s: %w", c.ID, err)
	}
	return c, nil
}
