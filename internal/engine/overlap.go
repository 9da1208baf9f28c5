package engine

import (
	"context"
	"fmt"
)

// OverlapQuery implements spec §4.4: given [min,max], enumerate intervals
// with tMax >= min && tMin <= max, clipped to [min,max].
//
// Note this predicate is closed at both ends, unlike IsPresentAt's half-open
// point test — see SPEC_FULL.md §9 for why both conventions coexist.
type OverlapQuery struct {
	store *IntervalStore
}

// NewOverlapQuery binds an OverlapQuery to the store it scans.
func NewOverlapQuery(store *IntervalStore) *OverlapQuery {
	return &OverlapQuery{store: store}
}

// Query positions a cursor on the by-max view at the lowest key >= min and
// walks forward, including every TI with tMax >= min && tMin <= max.
func (q *OverlapQuery) Query(ctx context.Context, min, max T) ([]Match, error) {
	ids, err := q.store.be.ZRangeByScore(ctx, q.store.maxKey(), scoreOf(min), scoreOf(TMax))
	if err != nil {
		return nil, fmt.Errorf("overlap: scan by-max view: %w", err)
	}

	matches := make([]Match, 0, len(ids))
	for _, idStr := range ids {
		raw, ok, err := q.store.be.HGet(ctx, q.store.tiKey(), idStr)
		if err != nil {
			return nil, fmt.Errorf("overlap: fetch TI %s: %w", idStr, err)
		}
		if !ok {
			continue // index/primary drift: tolerate
		}
		ti, err := decodeTI(raw)
		if err != nil {
			return nil, fmt.Errorf("overlap: decode TI %s: %w", idStr, err)
		}
		if ti.TMin > max {
			continue
		}
		matches = append(matches, Match{
			PersonID: ti.PersonID,
			TMin:     maxT(ti.TMin, min),
			TMax:     minT(ti.TMax, max),
		})
	}
	return matches, nil
}
