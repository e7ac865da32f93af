package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() ledger.Option {
	return ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// createJournaledLedger returns a ledger that journals every commit to s.
func createJournaledLedger(s *Store) *ledger.Store {
	return ledger.New(ledger.WithJournal(s), quietLogger())
}

func note(owner, reader ir.Party, text string) ledger.Draft {
	d := ledger.Draft{
		Template:    "Note",
		Signatories: []ir.Party{owner},
		Payload: ir.NewRecord(
			ir.F("owner", ir.Text(owner)),
			ir.F("reader", ir.Text(reader)),
			ir.F("text", ir.Text(text)),
			ir.F("pages", ir.Int(int64(len(text)))),
			ir.F("pinned", ir.Bool(false)),
		),
	}
	if reader != "" {
		d.Observers = []ir.Party{reader}
	}
	return d
}

// rewrite commits an exercise that archives id and creates a successor
// note with new text.
func rewrite(t *testing.T, l *ledger.Store, id ir.ContractID, text string) ir.Transition {
	t.Helper()
	old, err := l.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	owner := ir.Party(old.Payload.Text("owner"))
	reader := ir.Party(old.Payload.Text("reader"))
	tr, err := l.Commit(context.Background(), ledger.Pending{
		CommandID:   "cmd-rewrite",
		Timestamp:   t0.Add(time.Minute),
		ActingParty: owner,
		Kind:        ir.TransitionExercise,
		Template:    "Note",
		Choice:      "Rewrite",
		Target:      id,
		Args:        ir.NewRecord(ir.F("text", ir.Text(text))),
		Consumed:    []ir.ContractID{id},
		Produced:    []ledger.Draft{note(owner, reader, text)},
		Result:      ir.NewRecord(ir.F("status", ir.Text("rewritten"))),
	})
	if err != nil {
		t.Fatalf("Commit(rewrite) failed: %v", err)
	}
	return tr
}

// discard commits an exercise that archives id and produces nothing.
func discard(t *testing.T, l *ledger.Store, id ir.ContractID) ir.Transition {
	t.Helper()
	old, err := l.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	tr, err := l.Commit(context.Background(), ledger.Pending{
		CommandID:   "cmd-discard",
		Timestamp:   t0.Add(time.Minute),
		ActingParty: ir.Party(old.Payload.Text("owner")),
		Kind:        ir.TransitionExercise,
		Template:    "Note",
		Choice:      "Discard",
		Target:      id,
		Consumed:    []ir.ContractID{id},
	})
	if err != nil {
		t.Fatalf("Commit(discard) failed: %v", err)
	}
	return tr
}
