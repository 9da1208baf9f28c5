// Package engine implements the interval-presence core: a durable store of
// per-person presence intervals, and the sweep-line machinery that turns an
// overlapping set of intervals into an ordered sequence of splits.
package engine

import "math"

// T is a timestamp: signed seconds since the Unix epoch.
type T int64

// Sentinels. TMin models "always was present"; TMax models "still present".
const (
	TMin T = math.MinInt64
	TMax T = math.MaxInt64
)

// PersonID is a dense, monotonically assigned, never-reused identifier.
type PersonID int64

// NotFound is the sentinel PersonID meaning "no such id".
const NotFound PersonID = -1

// TI is a stored person-timespan tuple: "PersonID was present from TMin
// through TMax". At most one TI per person may have TMax == TMax (the
// person's "open" interval).
type TI struct {
	ID       int64    `json:"id"`
	PersonID PersonID `json:"person_id"`
	TMin     T        `json:"t_min"`
	TMax     T        `json:"t_max"`
}

// Match is a query-local copy of a TI, clipped to a query's [min,max] bounds.
type Match struct {
	PersonID PersonID
	TMin     T
	TMax     T
}

// eventKind orders sweep-line events at equal timestamps: OPEN before CLOSE.
type eventKind uint8

const (
	eventOpen eventKind = iota
	eventClose
)

// iSplit is a sweep-line event: (ts, kind, who).
type iSplit struct {
	ts   T
	kind eventKind
	who  PersonID
}

// Split is an output range plus the exact presence set over it.
type Split struct {
	TMin    T
	TMax    T
	Present map[PersonID]struct{}
}

// Count mirrors len(Present); used for the cheap empty-check GapFill needs.
func (s Split) Count() int { return len(s.Present) }

func minT(a, b T) T {
	if a < b {
		return a
	}
	return b
}

func maxT(a, b T) T {
	if a > b {
		return a
	}
	return b
}
