// Package query answers read-only questions about the active contract set.
//
// Every query runs against one ledger snapshot, so a caller iterating a
// result never observes a half-applied transition. Results are restricted
// to contracts the asking party can see and are ordered by contract id.
//
// Filters are queryir predicates. Portable predicates (Equals, And,
// Stakeholder) are evaluated directly; Expr predicates are compiled with
// CEL once and cached by source.
package query
