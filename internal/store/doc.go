// Package store provides the SQLite-backed journal for the contract ledger.
//
// The journal records, per committed transition:
//   - Transitions: the content-addressed transition record
//   - Contracts: every produced contract, with its parties and status
//   - Consumptions: which transition archived which contract
//
// # Invariants
//
// Consumption at most once
//   - consumptions.contract_id is the primary key
//   - archival is a compare-and-set on contracts.status; a second archive of
//     the same contract fails with Conflict and the whole transition rolls back
//
// Logical ordering
//   - transitions are ordered by seq, contracts by id, never by timestamp
//   - every query carries an ORDER BY
//
// Atomicity
//   - AppendTransition writes one transition and all its effects in a single
//     SQLite transaction
//
// # Connection settings
//
// The journal runs in WAL mode with synchronous=NORMAL, so readers never
// block the single writer. A writer waits up to five seconds for a lock
// before failing. Foreign keys are enforced, which ties every consumption
// and party row to a contract that exists.
//
// Payloads, arguments and results are stored as RFC 8785 canonical JSON so
// that a replayed journal recomputes the same transition ids.
package store
