// Package queryir is the filter language of the active set query service:
// a small, sealed IR describing which active contracts of one template a
// party wants to see.
//
// The same IR is executed two ways:
//
//	[Select] → query.Service  (in-memory, over a ledger snapshot)
//	         → querysql       (SQL, over the durable journal)
//
// # Portable fragment
//
// Equals, Stakeholder and And compile to both backends. Expr carries a CEL
// expression and is evaluated in memory only; Validate reports it as
// non-portable so callers know the SQL backend will refuse it.
//
// # Sealed interfaces
//
// Predicate is sealed with a marker method, so backends can switch over
// every node type exhaustively.
//
// Literal values are ir.Value, which has no floating point. Money fields
// are compared in their stored decimal text form.
package queryir
