package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Engine is the single handle DESIGN NOTES §9 asks for: it owns the backing
// store, the NameTable, the IntervalStore, the PresenceLog, and a mutex that
// serializes every mutating call the way the teacher's StringStore.writeMu
// serializes writes while reads stay lock-free. The daemon shell and the
// debug HTTP surface both hold a reference to one *Engine; nothing here is
// package-level mutable state.
type Engine struct {
	names    *NameTable
	store    *IntervalStore
	presence *PresenceLog
	overlap  *OverlapQuery

	be     backend
	closer func() error
	log    *zap.Logger

	writeMu sync.Mutex
}

// NewEngine dials the backing Redis instance, wires up the sub-components,
// and runs reconcile before returning so the returned Engine is immediately
// consistent with whatever was durable on disk.
func NewEngine(ctx context.Context, addr string, db int, namespace string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	rb := newRedisBackend(addr, db, log)
	e, err := newEngine(rb, namespace, log)
	if err != nil {
		return nil, err
	}
	e.closer = rb.Close

	if err := e.reconcile(ctx); err != nil {
		return nil, fmt.Errorf("engine: reconcile: %w", err)
	}
	return e, nil
}

// newEngine wires the sub-components over an arbitrary backend. Exported
// constructors (NewEngine) always supply a redisBackend; NewInMemory and engine package
// tests supply a memBackend so the wiring itself is exercised without a
// live Redis.
func newEngine(be backend, namespace string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	names := newNameTable(be, namespace)
	store := newIntervalStore(be, namespace)

	return &Engine{
		names:    names,
		store:    store,
		presence: newPresenceLog(names, store),
		overlap:  NewOverlapQuery(store),
		be:       be,
		log:      log.Named("engine"),
	}, nil
}

// reconcile repairs both monotonic id counters against durable state on
// startup: each Incr-backed sequence should already track the highest id
// actually persisted, but a crash between Incr and the HSET/ZADD that
// persists the entry it names can leave the counter ahead of a gap, or
// (if the counter key itself failed to persist) behind data that already
// exists. Only the "behind" case needs repair — EnsureSeqAtLeast is a no-op
// otherwise. Order matters: NameTable ids must be trustworthy before any
// IntervalStore entry that embeds a personId is, so the NameTable counter is
// repaired first, then the interval id counter (from the max tupleID seen in
// the by-max view).
func (e *Engine) reconcile(ctx context.Context) error {
	names, err := e.names.All(ctx)
	if err != nil {
		return fmt.Errorf("reconcile names: %w", err)
	}
	var maxPersonID PersonID
	for id := range names {
		if id > maxPersonID {
			maxPersonID = id
		}
	}
	if len(names) > 0 {
		if err := e.be.EnsureSeqAtLeast(ctx, e.names.seqKey(), int64(maxPersonID)+1); err != nil {
			return fmt.Errorf("reconcile names: repair seq: %w", err)
		}
	}
	e.log.Info("reconcile: name table checked", zap.Int("count", len(names)))

	maxTupleID, err := e.store.maxObservedID(ctx)
	if err != nil {
		return fmt.Errorf("reconcile intervals: %w", err)
	}
	if maxTupleID > 0 {
		if err := e.be.EnsureSeqAtLeast(ctx, e.store.seqKey(), maxTupleID); err != nil {
			return fmt.Errorf("reconcile intervals: repair seq: %w", err)
		}
	}
	e.log.Info("reconcile: interval index checked", zap.Int64("max_id", maxTupleID))

	return nil
}

// Close releases the backing Redis connection, if any.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// Start records that name became present at t (spec §4.3).
func (e *Engine) Start(ctx context.Context, name string, t T) (TI, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.presence.Start(ctx, name, t)
}

// Stop records that name stopped being present at t (spec §4.3).
func (e *Engine) Stop(ctx context.Context, name string, t T) (TI, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.presence.Stop(ctx, name, t)
}

// IsPresentAt answers a point query for name at t (spec §4.2). Reads take no
// lock: the backing store serves them directly and a concurrent write can
// only ever make the answer more current, never torn, since every mutation
// is applied atomically via backend.Apply.
func (e *Engine) IsPresentAt(ctx context.Context, name string, t T) (bool, error) {
	id, err := e.names.Lookup(ctx, name)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("isPresentAt: %w", err)
	}
	return e.store.IsPresentAt(ctx, id, t)
}

// PresentAt answers a point query at instant t (spec §4.7's "one token"
// case): every personId present at t, using the same half-open convention
// as IsPresentAt (B1), not OverlapQuery's closed-closed one. A point query
// clipped through OverlapQuery+Split would collapse every match to a
// zero-width interval and report nobody (spec §4.5's cancelling-pair rule,
// which is correct for interval queries but wrong here), so this walks the
// known people directly instead.
func (e *Engine) PresentAt(ctx context.Context, t T) (map[PersonID]struct{}, error) {
	all, err := e.names.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("presentAt: %w", err)
	}
	out := make(map[PersonID]struct{})
	for id := range all {
		present, err := e.store.IsPresentAt(ctx, id, t)
		if err != nil {
			return nil, fmt.Errorf("presentAt: person %d: %w", id, err)
		}
		if present {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// Overlap answers an interval query over [min,max] (spec §4.4), returning
// the raw Matches; callers compose Split and GapFill on top as needed.
func (e *Engine) Overlap(ctx context.Context, min, max T) ([]Match, error) {
	return e.overlap.Query(ctx, min, max)
}

// Splits answers an interval query as a gap-filled sequence of Splits: the
// composition of OverlapQuery, Split, and GapFill that spec §4.6 and §4.7
// describe as the steady-state query path.
func (e *Engine) Splits(ctx context.Context, min, max T) ([]Split, error) {
	matches, err := e.Overlap(ctx, min, max)
	if err != nil {
		return nil, fmt.Errorf("splits: overlap: %w", err)
	}
	s := Split(matches)
	return GapFill(ctx, e.subSplits, s, min, max)
}

// subSplits is the splitsFn GapFill uses to re-query a sub-range; it is just
// Overlap+Split over [a,b] instead of the original [min,max].
func (e *Engine) subSplits(ctx context.Context, a, b T) ([]Split, error) {
	matches, err := e.overlap.Query(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("subSplits: overlap: %w", err)
	}
	return Split(matches), nil
}

// NameOf resolves a personId back to its username, for presenting query
// results (spec §6's reply grammar names people, not ids).
func (e *Engine) NameOf(ctx context.Context, id PersonID) (string, error) {
	return e.names.NameOf(ctx, id)
}

// People returns every known (id, name) pair, for the debug HTTP surface's
// /api/people endpoint.
func (e *Engine) People(ctx context.Context) (map[PersonID]string, error) {
	return e.names.All(ctx)
}
