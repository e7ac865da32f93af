package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
)

// AppendTransition writes one committed transition and all of its effects
// in a single SQLite transaction: the transition row, the archival of every
// consumed contract, and every produced contract with its parties.
//
// Archival is a compare-and-set on status. If a consumed contract is not
// active in the journal the write fails with Conflict and nothing is
// recorded. A duplicate transition id or seq is rejected by the schema.
//
// AppendTransition implements ledger.Journal.
func (s *Store) AppendTransition(ctx context.Context, t ir.Transition) error {
	argsJSON, err := marshalRecord("args", t.Args)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	resultJSON, err := marshalRecord("result", t.Result)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append transition: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transitions
		(seq, id, command_id, ts, acting_party, kind, template, choice, target, args, result, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.Seq,
		t.ID,
		t.CommandID,
		formatTimestamp(t.Timestamp),
		string(t.ActingParty),
		string(t.Kind),
		t.Template,
		t.Choice,
		int64(t.Target),
		argsJSON,
		resultJSON,
		ir.EngineVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("append transition: insert transition: %w", err)
	}

	for pos, id := range t.Consumed {
		if err := archiveContract(ctx, tx, id, t.Seq, pos); err != nil {
			return fmt.Errorf("append transition: %w", err)
		}
	}

	for _, c := range t.Produced {
		if err := insertContract(ctx, tx, c, t.Seq); err != nil {
			return fmt.Errorf("append transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append transition: commit: %w", err)
	}
	return nil
}

// archiveContract flips one contract from active to archived. Zero rows
// affected means it was already archived or never journaled.
func archiveContract(ctx context.Context, tx *sql.Tx, id ir.ContractID, seq int64, pos int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE contracts SET status = 'archived', archived_seq = ?
		WHERE id = ? AND status = 'active'
	`, seq, int64(id))
	if err != nil {
		return fmt.Errorf("archive %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive %s: %w", id, err)
	}
	if n == 0 {
		return ir.Errorf(ir.ErrConflict, "contract is not active in the journal").OnContract(id)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO consumptions (contract_id, seq, position) VALUES (?, ?, ?)
	`, int64(id), seq, pos); err != nil {
		return fmt.Errorf("record consumption of %s: %w", id, err)
	}
	return nil
}

func insertContract(ctx context.Context, tx *sql.Tx, c ir.Contract, seq int64) error {
	payloadJSON, err := marshalRecord("payload", c.Payload)
	if err != nil {
		return err
	}
	sigJSON, err := marshalParties(c.Signatories)
	if err != nil {
		return err
	}
	obsJSON, err := marshalParties(c.Observers)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contracts (id, template, payload, signatories, observers, status, created_seq)
		VALUES (?, ?, ?, ?, ?, 'active', ?)
	`, int64(c.ID), c.Template, payloadJSON, sigJSON, obsJSON, seq)
	if err != nil {
		return fmt.Errorf("insert contract %s: %w", c.ID, err)
	}

	if err := insertParties(ctx, tx, c.ID, "signatory", c.Signatories); err != nil {
		return err
	}
	return insertParties(ctx, tx, c.ID, "observer", c.Observers)
}

func insertParties(ctx context.Context, tx *sql.Tx, id ir.ContractID, role string, parties []ir.Party) error {
	for _, p := range parties {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contract_parties (contract_id, party, role) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, int64(id), string(p), role); err != nil {
			return fmt.Errorf("insert %s %q of %s: %w", role, p, id, err)
		}
	}
	return nil
}
