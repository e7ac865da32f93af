// Package ledger is the contract store: the active contract index, the
// append-only transition log, and the single commit path that mutates both.
//
// # Commit protocol
//
// Every mutation goes through Store.Commit under one exclusive lock:
//
//  1. every consumed contract must still be active, else Conflict
//  2. the caller's live-state check runs (authorization re-check)
//  3. seq and contract ids are allocated, the transition id is computed
//  4. the journal, if any, persists the transition
//  5. consumed contracts are archived, produced contracts become active
//
// A failure at any step before 5 leaves the store exactly as it was, so a
// transition is all-or-nothing. Two commits racing to consume the same
// contract serialize on the lock and the second sees it archived.
//
// # Reads
//
// Snapshot copies the active index under a read lock and never blocks on
// later commits. Contracts are immutable once created; archival replaces
// the stored record rather than editing it, so snapshots can share
// payloads with the store.
package ledger
