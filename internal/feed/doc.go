// Package feed publishes committed transitions to Redis.
//
// Two surfaces are written for every transition:
//
//   - a stream (XADD) holding a metadata-only Event per seq, for
//     consumers that need to catch up after a restart
//   - a per-party Pub/Sub channel carrying the contracts that party can
//     see, payloads included
//
// The stream never carries payloads, so it is safe to hand to operators
// who are not stakeholders. Stream entry ids are derived from seq, which
// makes republishing after a crash idempotent.
//
// Key pattern: ledgerd:{namespace}:transitions
// Channel pattern: ledgerd:{namespace}:party:{party}:events
package feed
