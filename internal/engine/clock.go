package engine

import "time"

// Clock supplies ledger time. It is read once per submission; the value is
// recorded in the transition and passed to the transition function.
//
// Seq ordering never depends on Clock. Two transitions may carry the same
// ledger time, and a Clock may even run backwards without breaking the log.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
