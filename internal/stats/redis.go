package stats

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps cumulative counters in one hash plus per-minute
// bucket hashes that expire after ttl.
type RedisRecorder struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

func WithBucketTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

func NewRedisRecorder(rdb *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "reservation:stats",
		ttl:    24 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) totalKey() string {
	return r.prefix + ":total"
}

func (r *RedisRecorder) bucketKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func (r *RedisRecorder) Record(ctx context.Context, op, outcome string) {
	if r == nil || r.rdb == nil {
		return
	}
	f := field(op, outcome)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), f, 1)
	bucket := r.bucketKey(r.now())
	pipe.HIncrBy(ctx, bucket, f, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucket, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Failed to record %s in redis: %v", f, err)
	}
}

func (r *RedisRecorder) Totals(ctx context.Context) (Totals, error) {
	raw, err := r.rdb.HGetAll(ctx, r.totalKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats totals: %w", err)
	}
	out := make(Totals, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats field %s holds non-integer %q: %w", k, v, err)
		}
		out[k] = n
	}
	return out, nil
}
