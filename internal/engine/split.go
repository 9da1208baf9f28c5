package engine

import "sort"

// Split runs the sweep-line transform of spec §4.5 over a list of Matches
// already clipped to the query's [min,max] bounds. Each Match contributes an
// OPEN event at TMin and a CLOSE event at TMax; events sort by (ts asc, kind
// asc) so OPEN precedes CLOSE at equal timestamps, which is what makes a
// point Match (TMin == TMax) a no-op instead of a phantom split.
func Split(matches []Match) []Split {
	if len(matches) == 0 {
		return nil
	}

	events := make([]iSplit, 0, 2*len(matches))
	for _, m := range matches {
		events = append(events, iSplit{ts: m.TMin, kind: eventOpen, who: m.PersonID})
		events = append(events, iSplit{ts: m.TMax, kind: eventClose, who: m.PersonID})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ts != events[j].ts {
			return events[i].ts < events[j].ts
		}
		return events[i].kind < events[j].kind
	})

	present := make(map[PersonID]struct{})
	var out []Split
	for i := 0; i+1 < len(events); i++ {
		apply(present, events[i])

		a, b := events[i].ts, events[i+1].ts
		if a == b {
			continue // zero-width split
		}
		out = append(out, Split{TMin: a, TMax: b, Present: snapshot(present)})
	}
	// Drain the final event (a CLOSE at max, with no successor) so that the
	// person it removes doesn't leak into a caller that reuses `present`.
	apply(present, events[len(events)-1])

	return out
}

func apply(present map[PersonID]struct{}, ev iSplit) {
	switch ev.kind {
	case eventOpen:
		present[ev.who] = struct{}{}
	case eventClose:
		delete(present, ev.who)
	}
}

func snapshot(present map[PersonID]struct{}) map[PersonID]struct{} {
	out := make(map[PersonID]struct{}, len(present))
	for p := range present {
		out[p] = struct{}{}
	}
	return out
}
