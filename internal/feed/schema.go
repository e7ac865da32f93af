package feed

import (
	"fmt"
	"strconv"
	"strings"
)

// StreamKey returns the Redis stream holding transition events.
// Pattern: ledgerd:{namespace}:transitions
func StreamKey(namespace string) string {
	return fmt.Sprintf("ledgerd:%s:transitions", namespace)
}

// PartyChannel returns the Pub/Sub channel for one party's view.
// Pattern: ledgerd:{namespace}:party:{party}:events
func PartyChannel(namespace, party string) string {
	return fmt.Sprintf("ledgerd:%s:party:%s:events", namespace, party)
}

// entryID maps a seq to its stream entry id.
func entryID(seq int64) string {
	return strconv.FormatInt(seq, 10) + "-0"
}

// afterID is the smallest entry id greater than seq's.
func afterID(seq int64) string {
	return strconv.FormatInt(seq, 10) + "-1"
}

// seqOf parses the seq back out of an entry id.
func seqOf(id string) (int64, error) {
	ms, _, _ := strings.Cut(id, "-")
	seq, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	return seq, nil
}
