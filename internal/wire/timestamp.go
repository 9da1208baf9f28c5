// Package wire holds the peripheral plumbing spec §6 calls out as outside
// the core: textual ISO-8601 <-> epoch-second conversion and the
// line-oriented framing of the ingest/query protocol.
package wire

import (
	"fmt"
	"time"

	"github.com/hausd/itd/internal/engine"
)

// NowToken is the literal wire token that resolves to "the instant the
// query was dispatched" (spec's Scenario 6).
const NowToken = "now"

// dateLayout is the date-only ISO-8601 form used throughout spec's worked
// scenarios ("2022-01-01").
const dateLayout = "2006-01-02"

// ParseTimestamp converts one ISO-8601 token into engine.T. It accepts a
// bare date (midnight UTC), a full RFC3339 timestamp, or the literal token
// "now", which is resolved against `at` rather than time.Now() so a single
// query sees one consistent value for every "now" token it contains.
func ParseTimestamp(tok string, at time.Time) (engine.T, error) {
	if tok == NowToken {
		return engine.T(at.Unix()), nil
	}
	if t, err := time.Parse(dateLayout, tok); err == nil {
		return engine.T(t.Unix()), nil
	}
	if t, err := time.Parse(time.RFC3339, tok); err == nil {
		return engine.T(t.Unix()), nil
	}
	return 0, fmt.Errorf("wire: malformed timestamp %q", tok)
}

// FormatTimestamp renders a T back onto the wire for debug output. The
// sentinels are spelled "-" and "+"; ordinary instants render as RFC3339
// UTC, matching the precision ParseTimestamp accepts on round-trip.
func FormatTimestamp(t engine.T) string {
	switch t {
	case engine.TMin:
		return "-"
	case engine.TMax:
		return "+"
	default:
		return time.Unix(int64(t), 0).UTC().Format(time.RFC3339)
	}
}
