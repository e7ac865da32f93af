// Package ir provides the canonical ledger types for ledgerd.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the contract model,
// the template schema, and the error taxonomy in one foundational layer.
//
// Key design constraints:
//   - NO float types anywhere - money is an exact decimal carried as text
//   - Contracts are immutable once created; archival is the only state change
//   - All JSON tags use snake_case
//   - Transition ids are content-addressed over canonical JSON
package ir
