package engine

import "context"

// splitsFn is OverlapQuery+Split composed over a sub-range: the "splits(a,b)"
// helper spec §4.6 calls out. GapFill is parameterized on it (rather than
// holding an *IntervalStore directly) so it can be unit-tested against a
// scripted fake.
type splitsFn func(ctx context.Context, min, max T) ([]Split, error)

// GapFill implements spec §4.6. Because this engine's "background" index is
// the same store as the primary one (B = A, per spec), any sub-range GapFill
// re-queries was necessarily already covered by the original OverlapQuery
// pass over the full [min,max] — so a re-query that finds nothing proves
// there is genuinely no data there, and GapFill turns that into an explicit
// empty-presence Split rather than leaving a hole. This is what makes I3
// (contiguous coverage) hold for every non-empty primary dataset.
//
// The one exception is the whole-range case (step 1, s initially empty):
// GapFill returns the re-query over [min,max] as-is, so per B2 an empty
// result stays empty rather than being replaced by a single synthesized
// empty split over [min,max].
func GapFill(ctx context.Context, sf splitsFn, s []Split, min, max T) ([]Split, error) {
	if len(s) == 0 {
		return sf(ctx, min, max)
	}

	fillOrEmpty := func(a, b T) ([]Split, error) {
		more, err := sf(ctx, a, b)
		if err != nil {
			return nil, err
		}
		if len(more) == 0 {
			return []Split{{TMin: a, TMax: b, Present: map[PersonID]struct{}{}}}, nil
		}
		return more, nil
	}

	out := make([]Split, 0, len(s)+2)

	if s[0].TMin > min {
		more, err := fillOrEmpty(min, s[0].TMin)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}

	for _, sp := range s {
		if sp.Count() == 0 {
			more, err := fillOrEmpty(sp.TMin, sp.TMax)
			if err != nil {
				return nil, err
			}
			out = append(out, more...)
			continue
		}
		out = append(out, sp)
	}

	if last := s[len(s)-1].TMax; max > last {
		more, err := fillOrEmpty(last, max)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}

	return out, nil
}
