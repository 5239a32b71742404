package queue

import (
	"fmt"
	"time"
)

// NextToken computes the next daily token for a room given the entries
// already queued. Numbering is per-room and per-day: only entries inserted
// after the most recent local midnight count toward the counter, so the first
// admission of a new day always yields counter 1. The function is pure; the
// caller appends the resulting entry.
//
// The token format "T-{room}-{n}" is part of the public contract consumed by
// display boards and must stay stable.
func NextToken(room string, entries []Entry, now time.Time) string {
	midnight := localMidnight(now)
	n := 0
	for i := range entries {
		if !entries[i].InsertedAt.In(now.Location()).Before(midnight) {
			n++
		}
	}
	return fmt.Sprintf("T-%s-%d", room, n+1)
}

// localMidnight truncates t to 00:00:00 in its own location.
func localMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
