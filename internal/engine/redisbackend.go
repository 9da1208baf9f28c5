package engine

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisBackend wires backend against go-redis/v9, the durable key/value
// system of record. It plays the role the spec's §6 "five named
// sub-databases" describe, folded onto Redis's own primitives:
//
//	g   -> HASH   <namespace>:g           username -> personId
//	ig  -> HASH   <namespace>:ig          personId -> username
//	ti  -> HASH   <namespace>:ti          tupleId  -> JSON(TI)     (primary view)
//	max -> ZSET   <namespace>:max         tupleId, score=tMax      (by-max view)
//	id  -> ZSET   <namespace>:id:<id>     tupleId, score=tMin      (by-person view)
type redisBackend struct {
	rdb *redis.Client
	log *zap.Logger
}

// newRedisBackend dials Redis with the connection recipe this pack's server
// code always uses: bounded dial/read/write timeouts, a small pool, and a
// liveness ping logged at startup (fatal conditions are surfaced by the
// caller, not hidden here).
func newRedisBackend(addr string, db int, log *zap.Logger) *redisBackend {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("redis")

	opts := &redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
	rdb := redis.NewClient(opts)

	b := &redisBackend{rdb: rdb, log: log}
	b.ping()
	return b
}

func (b *redisBackend) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.rdb.Ping(ctx).Err()
	elapsed := time.Since(start)
	if err != nil {
		b.log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", elapsed))
		return
	}
	b.log.Info("connection established", zap.Duration("ping_rtt", elapsed))
}

func (b *redisBackend) Close() error { return b.rdb.Close() }

func (b *redisBackend) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := b.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *redisBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.rdb.HGetAll(ctx, key).Result()
}

func (b *redisBackend) Incr(ctx context.Context, key string) (int64, error) {
	return b.rdb.Incr(ctx, key).Result()
}

// EnsureSeqAtLeast repairs a sequence counter via optimistic locking: GET
// under a WATCH, and only SET if the observed value still trails min, so a
// concurrent Incr on the same key is never clobbered.
func (b *redisBackend) EnsureSeqAtLeast(ctx context.Context, key string, min int64) error {
	return b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur >= min {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, min, 0)
			return nil
		})
		return err
	}, key)
}

func (b *redisBackend) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return b.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
}

func (b *redisBackend) ZRevRangeByScoreN(ctx context.Context, key string, min, max float64, n int64) ([]string, error) {
	return b.rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   formatScore(min),
		Max:   formatScore(max),
		Count: n,
	}).Result()
}

// Apply mirrors the teacher repo's channel_repo.go Upsert/Delete: queue every
// mutation on a TxPipeline so it commits atomically from the caller's view.
func (b *redisBackend) Apply(ctx context.Context, ops []op) error {
	if len(ops) == 0 {
		return nil
	}
	pipe := b.rdb.TxPipeline()
	for _, o := range ops {
		switch o.kind {
		case opHSet:
			pipe.HSet(ctx, o.key, o.field, o.value)
		case opHDel:
			pipe.HDel(ctx, o.key, o.field)
		case opZAdd:
			pipe.ZAdd(ctx, o.key, redis.Z{Score: o.score, Member: o.member})
		case opZRem:
			pipe.ZRem(ctx, o.key, o.member)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
