package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/ledgerd/internal/ir"
)

// marshalRecord encodes r the same way transition ids hash it, so a
// stored row round-trips to identical bytes. A nil record is stored as {}.
func marshalRecord(what string, r ir.Record) (string, error) {
	if r == nil {
		r = ir.Record{}
	}
	data, err := ir.MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// unmarshalRecord parses canonical JSON TEXT to a record.
// ir.Record.UnmarshalJSON keeps integers exact and rejects fractions.
func unmarshalRecord(what, data string) (ir.Record, error) {
	if data == "" || data == "{}" {
		return ir.Record{}, nil
	}
	var r ir.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return r, nil
}

// marshalParties stores a party set as a canonical JSON array of strings.
func marshalParties(parties []ir.Party) (string, error) {
	list := make(ir.List, len(parties))
	for i, p := range parties {
		list[i] = ir.Text(p)
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal parties: %w", err)
	}
	return string(data), nil
}

func unmarshalParties(data string) ([]ir.Party, error) {
	var raw []string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal parties: %w", err)
	}
	out := make([]ir.Party, len(raw))
	for i, p := range raw {
		out[i] = ir.Party(p)
	}
	return out, nil
}

// formatTimestamp renders ledger time the way the transition id hashes it.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return t.UTC(), nil
}
