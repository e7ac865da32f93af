// Package engine implements the transition executor.
//
// A submission is either a create of a new contract or the exercise of a
// choice on an active one. Both run the same pipeline:
//
//  1. Resolve the target and any contracts named by consuming arguments
//  2. Authorize the submitter
//  3. Validate arguments against the declared schema
//  4. Run the pure transition function at a fixed ledger time
//  5. Validate every produced payload and compute its parties
//  6. Check that no one becomes a signatory without consent
//  7. Commit atomically, re-running authorization against live state
//
// Steps 1 through 6 run without locks; only the commit is exclusive. A
// submission that loses a race on a contract fails with Conflict and may be
// retried. Every other failure is deterministic.
//
// # Ordering
//
// Committed transitions are handed to observers in seq order by Run,
// outside the commit path. An observer that fails is logged and skipped;
// it never rolls back a commit.
//
// # Time
//
// Ledger time is read once per submission from the engine Clock and passed
// to the transition function, which is what makes replay reproduce the
// same transitions.
package engine
