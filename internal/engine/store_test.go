package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntervalStoreInsertAndFindLastOpen(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	ti, err := store.Insert(ctx, PersonID(0), T(100), TMax)
	require.NoError(t, err)

	open, err := store.FindLastOpen(ctx, PersonID(0))
	require.NoError(t, err)
	require.Equal(t, ti, open)
}

func TestIntervalStoreInsertRejectsSecondOpenInterval(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	_, err := store.Insert(ctx, PersonID(0), T(100), TMax)
	require.NoError(t, err)

	_, err = store.Insert(ctx, PersonID(0), T(200), TMax)
	require.ErrorIs(t, err, ErrInvariant, "a second open interval for the same person must be rejected")
}

func TestIntervalStoreFindLastOpenNoneReturnsErr(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	_, err := store.FindLastOpen(ctx, PersonID(0))
	require.ErrorIs(t, err, ErrNoOpenInterval)
}

// TestIntervalStoreFindLastOpenWithTMinSentinel pins the bug found during
// development: a TI whose TMin is the T_MIN sentinel must still be scanned
// by the by-person view, which means the view's scan bounds must be true
// +/-Inf, not a large-but-finite placeholder.
func TestIntervalStoreFindLastOpenWithTMinSentinel(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	ti, err := store.Insert(ctx, PersonID(0), TMin, TMax)
	require.NoError(t, err)

	open, err := store.FindLastOpen(ctx, PersonID(0))
	require.NoError(t, err)
	require.Equal(t, ti, open)
}

func TestIntervalStoreCloseLastOpen(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	_, err := store.Insert(ctx, PersonID(0), T(100), TMax)
	require.NoError(t, err)

	closed, err := store.CloseLastOpen(ctx, PersonID(0), T(200))
	require.NoError(t, err)
	require.Equal(t, T(100), closed.TMin)
	require.Equal(t, T(200), closed.TMax)

	_, err = store.FindLastOpen(ctx, PersonID(0))
	require.ErrorIs(t, err, ErrNoOpenInterval)
}

func TestIntervalStoreIsPresentAtHalfOpen(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	_, err := store.Insert(ctx, PersonID(0), T(100), T(200))
	require.NoError(t, err)

	present, err := store.IsPresentAt(ctx, PersonID(0), T(100))
	require.NoError(t, err)
	require.True(t, present, "interval start is inclusive")

	present, err = store.IsPresentAt(ctx, PersonID(0), T(199))
	require.NoError(t, err)
	require.True(t, present)

	present, err = store.IsPresentAt(ctx, PersonID(0), T(200))
	require.NoError(t, err)
	require.False(t, present, "interval end is exclusive (half-open)")

	present, err = store.IsPresentAt(ctx, PersonID(0), T(99))
	require.NoError(t, err)
	require.False(t, present)
}

// TestIntervalStoreIsPresentAtWithOpenSentinel pins B1: a still-open interval
// (TMax sentinel) must answer present for any t at or after its start.
func TestIntervalStoreIsPresentAtWithOpenSentinel(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	_, err := store.Insert(ctx, PersonID(0), T(100), TMax)
	require.NoError(t, err)

	present, err := store.IsPresentAt(ctx, PersonID(0), T(1<<40))
	require.NoError(t, err)
	require.True(t, present)
}

func TestIntervalStoreIsPresentAtNoIntervalsIsFalse(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	present, err := store.IsPresentAt(ctx, PersonID(0), T(100))
	require.NoError(t, err)
	require.False(t, present)
}

func TestIntervalStoreDisjointIntervalsPickLatestCandidate(t *testing.T) {
	ctx := context.Background()
	store := newIntervalStore(newMemBackend(), "it")

	_, err := store.Insert(ctx, PersonID(0), T(0), T(100))
	require.NoError(t, err)
	_, err = store.Insert(ctx, PersonID(0), T(200), T(300))
	require.NoError(t, err)

	present, err := store.IsPresentAt(ctx, PersonID(0), T(150))
	require.NoError(t, err)
	require.False(t, present, "gap between the two intervals")

	present, err = store.IsPresentAt(ctx, PersonID(0), T(250))
	require.NoError(t, err)
	require.True(t, present)
}
