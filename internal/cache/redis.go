package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "rana:cache:"
	redisScanBatch      = 100
	redisDeleteBatch    = 100
	defaultRedisTimeout = 2 * time.Second
)

// Redis implements Cache against a TTL-capable key-value store. Clear scans
// incrementally over the cache's own prefix; it never flushes the database,
// which may be shared with unrelated keys.
type Redis struct {
	counters

	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// RedisConfig configures the connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis connects and pings the server so misconfiguration fails at startup,
// not on first request.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultRedisTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, timeout: defaultRedisTimeout}, nil
}

// NewRedisWithClient wraps an existing client, for callers that manage the
// connection themselves (cluster setups, shared pools).
func NewRedisWithClient(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, timeout: defaultRedisTimeout}
}

func (r *Redis) key(key string) string { return r.prefix + key }

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Get implements Cache. Connection failures degrade to a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	val, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis get failed", slog.Any("error", err))
		}
		r.miss()
		return nil, false
	}
	r.hit()
	return val, true
}

// Set implements Cache. Failures are a logged no-op.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.rdb.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		slog.Warn("redis set failed", slog.Any("error", err))
	}
}

// Has implements Cache.
func (r *Redis) Has(ctx context.Context, key string) bool {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.rdb.Exists(ctx, r.key(key)).Result()
	return err == nil && n > 0
}

// Delete implements Cache.
func (r *Redis) Delete(ctx context.Context, key string) bool {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.rdb.Del(ctx, r.key(key)).Result()
	if err != nil {
		slog.Warn("redis del failed", slog.Any("error", err))
		return false
	}
	return n > 0
}

// Clear implements Cache via incremental SCAN over the prefix with batched
// deletes.
func (r *Redis) Clear(ctx context.Context) {
	var cursor uint64
	for {
		scanCtx, cancel := r.withTimeout(ctx)
		batch, next, err := r.rdb.Scan(scanCtx, cursor, r.prefix+"*", redisScanBatch).Result()
		cancel()
		if err != nil {
			slog.Warn("redis scan failed", slog.Any("error", err))
			return
		}

		for i := 0; i < len(batch); i += redisDeleteBatch {
			end := min(i+redisDeleteBatch, len(batch))
			delCtx, cancel := r.withTimeout(ctx)
			if err := r.rdb.Del(delCtx, batch[i:end]...).Err(); err != nil {
				slog.Warn("redis batched delete failed", slog.Any("error", err))
			}
			cancel()
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Cleanup implements Cache. Redis expires keys server-side, so there is
// nothing to sweep.
func (r *Redis) Cleanup(context.Context) int { return 0 }

// Stats implements Cache.
func (r *Redis) Stats() Stats {
	return r.snapshot(r.Len(context.Background()))
}

// Len implements Cache by counting owned keys with SCAN.
func (r *Redis) Len(ctx context.Context) int {
	var cursor uint64
	total := 0
	for {
		scanCtx, cancel := r.withTimeout(ctx)
		batch, next, err := r.rdb.Scan(scanCtx, cursor, r.prefix+"*", redisScanBatch).Result()
		cancel()
		if err != nil {
			slog.Warn("redis scan failed", slog.Any("error", err))
			return total
		}
		total += len(batch)
		cursor = next
		if cursor == 0 {
			return total
		}
	}
}
