package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// IntervalStore is the persistent multimap of TIs described in spec §4.2:
// a primary view keyed by tuple id, and two ordered secondary views (by tMax,
// by personId) realized as Redis sorted sets per redisbackend.go's key plan.
type IntervalStore struct {
	be        backend
	namespace string
}

func newIntervalStore(be backend, namespace string) *IntervalStore {
	return &IntervalStore{be: be, namespace: namespace}
}

func (s *IntervalStore) tiKey() string          { return s.namespace + ":ti" }
func (s *IntervalStore) maxKey() string         { return s.namespace + ":max" }
func (s *IntervalStore) seqKey() string         { return s.namespace + ":ti:seq" }
func (s *IntervalStore) personKey(p PersonID) string {
	return s.namespace + ":id:" + strconv.FormatInt(int64(p), 10)
}

func encodeTI(ti TI) (string, error) {
	b, err := json.Marshal(ti)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTI(raw string) (TI, error) {
	var ti TI
	if err := json.Unmarshal([]byte(raw), &ti); err != nil {
		return TI{}, err
	}
	return ti, nil
}

// Insert adds a new TI. Callers are responsible for invariants I1/I2 (at
// most one open interval per person; no overlap for the same person) —
// PresenceLog is the only caller and upholds them via isPresentAt/
// findLastOpen checks before calling Insert. Insert still double-checks I1
// defensively: opening a second interval for a person who already has one
// open would silently corrupt the by-person view, so that case fails loudly
// instead.
func (s *IntervalStore) Insert(ctx context.Context, personID PersonID, tMin, tMax T) (TI, error) {
	if tMax == TMax {
		if _, err := s.FindLastOpen(ctx, personID); err == nil {
			return TI{}, fmt.Errorf("insert person %d: %w", personID, ErrInvariant)
		} else if err != ErrNoOpenInterval {
			return TI{}, fmt.Errorf("insert: check existing open: %w", err)
		}
	}

	id, err := s.be.Incr(ctx, s.seqKey())
	if err != nil {
		return TI{}, fmt.Errorf("allocate tuple id: %w", err)
	}
	ti := TI{ID: id, PersonID: personID, TMin: tMin, TMax: tMax}
	if err := s.persist(ctx, ti); err != nil {
		return TI{}, err
	}
	return ti, nil
}

func (s *IntervalStore) persist(ctx context.Context, ti TI) error {
	data, err := encodeTI(ti)
	if err != nil {
		return fmt.Errorf("encode TI: %w", err)
	}
	idStr := strconv.FormatInt(ti.ID, 10)
	ops := []op{
		hset(s.tiKey(), idStr, data),
		zadd(s.maxKey(), idStr, scoreOf(ti.TMax)),
		zadd(s.personKey(ti.PersonID), idStr, scoreOf(ti.TMin)),
	}
	if err := s.be.Apply(ctx, ops); err != nil {
		return fmt.Errorf("persist TI: %w", err)
	}
	return nil
}

func (s *IntervalStore) purge(ctx context.Context, ti TI) []op {
	idStr := strconv.FormatInt(ti.ID, 10)
	return []op{
		hdel(s.tiKey(), idStr),
		zrem(s.maxKey(), idStr),
		zrem(s.personKey(ti.PersonID), idStr),
	}
}

// FindLastOpen walks the by-person view for personId and returns the unique
// TI with TMax == TMax. Returns ErrNoOpenInterval if none exists — per spec
// §4.2 this means the caller is misusing the API.
func (s *IntervalStore) FindLastOpen(ctx context.Context, personID PersonID) (TI, error) {
	ids, err := s.be.ZRangeByScore(ctx, s.personKey(personID), math.Inf(-1), math.Inf(1))
	if err != nil {
		return TI{}, fmt.Errorf("scan by-person view: %w", err)
	}
	for _, idStr := range ids {
		raw, ok, err := s.be.HGet(ctx, s.tiKey(), idStr)
		if err != nil {
			return TI{}, fmt.Errorf("fetch TI %s: %w", idStr, err)
		}
		if !ok {
			continue // index/primary drift: tolerate, keep scanning
		}
		ti, err := decodeTI(raw)
		if err != nil {
			return TI{}, fmt.Errorf("decode TI %s: %w", idStr, err)
		}
		if ti.TMax == TMax {
			return ti, nil
		}
	}
	return TI{}, ErrNoOpenInterval
}

// CloseLastOpen finds the open TI for personId, deletes it, and inserts
// (personId, tMin, tEnd) in its place — atomically, per spec §4.2.
func (s *IntervalStore) CloseLastOpen(ctx context.Context, personID PersonID, tEnd T) (TI, error) {
	open, err := s.FindLastOpen(ctx, personID)
	if err != nil {
		return TI{}, err
	}

	newID, err := s.be.Incr(ctx, s.seqKey())
	if err != nil {
		return TI{}, fmt.Errorf("allocate tuple id: %w", err)
	}
	closed := TI{ID: newID, PersonID: personID, TMin: open.TMin, TMax: tEnd}
	data, err := encodeTI(closed)
	if err != nil {
		return TI{}, fmt.Errorf("encode TI: %w", err)
	}

	ops := append(s.purge(ctx, open),
		hset(s.tiKey(), strconv.FormatInt(newID, 10), data),
		zadd(s.maxKey(), strconv.FormatInt(newID, 10), scoreOf(tEnd)),
		zadd(s.personKey(personID), strconv.FormatInt(newID, 10), scoreOf(open.TMin)),
	)
	if err := s.be.Apply(ctx, ops); err != nil {
		return TI{}, fmt.Errorf("persist close: %w", err)
	}
	return closed, nil
}

// IsPresentAt reports whether personId was present at instant t, using the
// half-open convention [tMin, tMax). Because a person's intervals are
// disjoint (I2), the only candidate is the one with the largest tMin <= t;
// if that one doesn't cover t, none do.
func (s *IntervalStore) IsPresentAt(ctx context.Context, personID PersonID, t T) (bool, error) {
	ids, err := s.be.ZRevRangeByScoreN(ctx, s.personKey(personID), math.Inf(-1), scoreOf(t), 1)
	if err != nil {
		return false, fmt.Errorf("scan by-person view: %w", err)
	}
	if len(ids) == 0 {
		return false, nil
	}
	raw, ok, err := s.be.HGet(ctx, s.tiKey(), ids[0])
	if err != nil {
		return false, fmt.Errorf("fetch TI %s: %w", ids[0], err)
	}
	if !ok {
		return false, nil
	}
	ti, err := decodeTI(raw)
	if err != nil {
		return false, fmt.Errorf("decode TI %s: %w", ids[0], err)
	}
	return ti.TMin <= t && t < ti.TMax, nil
}

// maxObservedID returns the largest tuple id present in the by-max view, or
// 0 if the store is empty. Used by Engine.reconcile to repair a seq counter
// that has fallen behind the durably-persisted data.
func (s *IntervalStore) maxObservedID(ctx context.Context) (int64, error) {
	ids, err := s.be.ZRangeByScore(ctx, s.maxKey(), math.Inf(-1), math.Inf(1))
	if err != nil {
		return 0, fmt.Errorf("maxObservedID: scan by-max view: %w", err)
	}
	var max int64
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue // reconcile: drop malformed keys rather than abort
		}
		if id > max {
			max = id
		}
	}
	return max, nil
}

