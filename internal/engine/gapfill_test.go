package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedSplits returns a splitsFn that always answers with `reply` and
// records every (min,max) it was asked about.
func scriptedSplits(reply []Split) (splitsFn, *[][2]T) {
	var calls [][2]T
	return func(ctx context.Context, min, max T) ([]Split, error) {
		calls = append(calls, [2]T{min, max})
		return reply, nil
	}, &calls
}

// TestGapFillEmptyInputPassesThrough pins B2: when s starts out empty (the
// whole-range query found nothing at all), GapFill must not synthesize a
// placeholder — it re-queries the whole range and returns whatever comes
// back, unchanged.
func TestGapFillEmptyInputPassesThrough(t *testing.T) {
	want := []Split{{TMin: 0, TMax: 100, Present: map[PersonID]struct{}{}}}
	sf, calls := scriptedSplits(want)

	out, err := GapFill(context.Background(), sf, nil, 0, 100)
	require.NoError(t, err)
	require.Equal(t, want, out)
	require.Equal(t, [][2]T{{0, 100}}, *calls)
}

func TestGapFillNoGaps(t *testing.T) {
	sf, calls := scriptedSplits(nil)

	s := []Split{{TMin: 0, TMax: 100, Present: map[PersonID]struct{}{0: {}}}}
	out, err := GapFill(context.Background(), sf, s, 0, 100)
	require.NoError(t, err)
	require.Equal(t, s, out)
	require.Empty(t, *calls, "no sub-range re-query needed when there's no gap")
}

func TestGapFillHeadGapSynthesized(t *testing.T) {
	sf, calls := scriptedSplits(nil)

	s := []Split{{TMin: 50, TMax: 100, Present: map[PersonID]struct{}{0: {}}}}
	out, err := GapFill(context.Background(), sf, s, 0, 100)
	require.NoError(t, err)

	require.Equal(t, []Split{
		{TMin: 0, TMax: 50, Present: map[PersonID]struct{}{}},
		{TMin: 50, TMax: 100, Present: map[PersonID]struct{}{0: {}}},
	}, out)
	require.Equal(t, [][2]T{{0, 50}}, *calls)
}

func TestGapFillTailGapSynthesized(t *testing.T) {
	sf, calls := scriptedSplits(nil)

	s := []Split{{TMin: 0, TMax: 50, Present: map[PersonID]struct{}{0: {}}}}
	out, err := GapFill(context.Background(), sf, s, 0, 100)
	require.NoError(t, err)

	require.Equal(t, []Split{
		{TMin: 0, TMax: 50, Present: map[PersonID]struct{}{0: {}}},
		{TMin: 50, TMax: 100, Present: map[PersonID]struct{}{}},
	}, out)
	require.Equal(t, [][2]T{{50, 100}}, *calls)
}

// TestScenario5GapFill pins spec's worked Scenario 5: a single present
// interval over [Jan1,Feb1] followed by an empty tail over [Feb1,Mar1].
func TestScenario5GapFill(t *testing.T) {
	const (
		jan1 T = 0
		feb1 T = 31
		mar1 T = 59
	)
	sf, calls := scriptedSplits(nil)

	s := []Split{{TMin: jan1, TMax: feb1, Present: map[PersonID]struct{}{0: {}}}}
	out, err := GapFill(context.Background(), sf, s, jan1, mar1)
	require.NoError(t, err)

	require.Equal(t, []Split{
		{TMin: jan1, TMax: feb1, Present: map[PersonID]struct{}{0: {}}},
		{TMin: feb1, TMax: mar1, Present: map[PersonID]struct{}{}},
	}, out)
	require.Equal(t, [][2]T{{feb1, mar1}}, *calls)
}

func TestGapFillMiddleZeroCountSplitSynthesized(t *testing.T) {
	sf, calls := scriptedSplits(nil)

	s := []Split{
		{TMin: 0, TMax: 50, Present: map[PersonID]struct{}{0: {}}},
		{TMin: 50, TMax: 75, Present: map[PersonID]struct{}{}},
		{TMin: 75, TMax: 100, Present: map[PersonID]struct{}{1: {}}},
	}
	out, err := GapFill(context.Background(), sf, s, 0, 100)
	require.NoError(t, err)

	require.Equal(t, s, out, "the zero-count split's own range re-queries to nothing, so it's kept as-is")
	require.Equal(t, [][2]T{{50, 75}}, *calls)
}

func TestGapFillSubQueryFindsData(t *testing.T) {
	found := []Split{{TMin: 0, TMax: 50, Present: map[PersonID]struct{}{2: {}}}}
	sf, _ := scriptedSplits(found)

	s := []Split{{TMin: 50, TMax: 100, Present: map[PersonID]struct{}{0: {}}}}
	out, err := GapFill(context.Background(), sf, s, 0, 100)
	require.NoError(t, err)

	require.Equal(t, []Split{
		{TMin: 0, TMax: 50, Present: map[PersonID]struct{}{2: {}}},
		{TMin: 50, TMax: 100, Present: map[PersonID]struct{}{0: {}}},
	}, out)
}
