package engine

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// memBackend is a pure in-memory backend satisfying the same contract as the
// Redis-backed one. It exists so packages that depend on *Engine (dispatch,
// daemon, the admin HTTP surface) can exercise real wiring in tests without a
// live Redis. It is not a faithful reimplementation of Redis semantics beyond
// what the backend interface requires.
type memBackend struct {
	hashes map[string]map[string]string
	zsets  map[string]map[string]float64
	seqs   map[string]int64
}

func newMemBackend() *memBackend {
	return &memBackend{
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]map[string]float64),
		seqs:   make(map[string]int64),
	}
}

func (f *memBackend) HGet(ctx context.Context, key, field string) (string, bool, error) {
	h, ok := f.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (f *memBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *memBackend) Incr(ctx context.Context, key string) (int64, error) {
	f.seqs[key]++
	return f.seqs[key], nil
}

func (f *memBackend) EnsureSeqAtLeast(ctx context.Context, key string, min int64) error {
	if f.seqs[key] < min {
		f.seqs[key] = min
	}
	return nil
}

func (f *memBackend) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	type pair struct {
		member string
		score  float64
	}
	var pairs []pair
	for m, s := range f.zsets[key] {
		if s >= min && s <= max {
			pairs = append(pairs, pair{m, s})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.member
	}
	return out, nil
}

func (f *memBackend) ZRevRangeByScoreN(ctx context.Context, key string, min, max float64, n int64) ([]string, error) {
	all, err := f.ZRangeByScore(ctx, key, min, max)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if n > 0 && int64(len(all)) > n {
		all = all[:n]
	}
	return all, nil
}

func (f *memBackend) Apply(ctx context.Context, ops []op) error {
	for _, o := range ops {
		switch o.kind {
		case opHSet:
			h, ok := f.hashes[o.key]
			if !ok {
				h = make(map[string]string)
				f.hashes[o.key] = h
			}
			h[o.field] = o.value
		case opHDel:
			if h, ok := f.hashes[o.key]; ok {
				delete(h, o.field)
			}
		case opZAdd:
			z, ok := f.zsets[o.key]
			if !ok {
				z = make(map[string]float64)
				f.zsets[o.key] = z
			}
			z[o.member] = o.score
		case opZRem:
			if z, ok := f.zsets[o.key]; ok {
				delete(z, o.member)
			}
		}
	}
	return nil
}

// NewInMemory builds an *Engine over a process-local in-memory backend, with
// no Redis dependency and nothing to Close. It is exported for use by other
// packages' tests (dispatch, daemon, the admin HTTP surface) that need a
// real, wired Engine rather than a hand-rolled stand-in of Engine's own
// behavior.
func NewInMemory(namespace string, log *zap.Logger) *Engine {
	eng, err := newEngine(newMemBackend(), namespace, log)
	if err != nil {
		// newEngine only fails on backend I/O errors, which memBackend never
		// produces.
		panic(err)
	}
	return eng
}
