package engine

import (
	"context"
	"math"
)

// opKind tags a single mutation queued into an atomic backend.Apply batch.
type opKind uint8

const (
	opHSet opKind = iota
	opHDel
	opZAdd
	opZRem
)

// op is one queued mutation. Not all fields apply to every kind:
//   - opHSet: key, field, value
//   - opHDel: key, field
//   - opZAdd: key, member, score
//   - opZRem: key, member
type op struct {
	kind   opKind
	key    string
	field  string
	value  string
	member string
	score  float64
}

func hset(key, field, value string) op { return op{kind: opHSet, key: key, field: field, value: value} }
func hdel(key, field string) op        { return op{kind: opHDel, key: key, field: field} }
func zadd(key, member string, score float64) op {
	return op{kind: opZAdd, key: key, member: member, score: score}
}
func zrem(key, member string) op { return op{kind: opZRem, key: key, member: member} }

// backend is the minimal durable key/value contract the engine needs: hash
// fields (NameTable's g/ig, IntervalStore's primary "ti" view), sorted sets
// (the by-max and by-person ordered views), an atomic id sequence, and a
// batch of mutations applied together. redisBackend implements it against
// go-redis; memBackend (inmemory.go, used by tests and NewInMemory)
// implements it in memory.
type backend interface {
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Incr(ctx context.Context, key string) (int64, error)

	// EnsureSeqAtLeast repairs a sequence key whose counter has fallen
	// behind the highest id actually observed in durable data (e.g. after a
	// counter key failed to persist across a crash): it is a no-op if the
	// counter already reads >= min, otherwise it advances it to min.
	EnsureSeqAtLeast(ctx context.Context, key string, min int64) error

	// ZRangeByScore returns members with score in [min,max], ascending.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// ZRevRangeByScoreN returns up to n members with score in [min,max],
	// descending by score (i.e. the n members with the largest scores).
	ZRevRangeByScoreN(ctx context.Context, key string, min, max float64, n int64) ([]string, error)

	// Apply executes every op atomically (all-or-nothing from the caller's
	// point of view).
	Apply(ctx context.Context, ops []op) error
}

// scoreOf maps a timestamp onto a float64 sorted-set score, preserving the
// T_MIN/T_MAX sentinels as -Inf/+Inf so they always sort first/last.
func scoreOf(t T) float64 {
	switch t {
	case TMax:
		return math.Inf(1)
	case TMin:
		return math.Inf(-1)
	default:
		return float64(t)
	}
}
