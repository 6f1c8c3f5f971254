package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder(t *testing.T) {
	m := NewMemoryRecorder()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				m.Record(ctx, "confirm", "capacity")
				return
			}
			m.Record(ctx, "confirm", "ok")
		}(i)
	}
	wg.Wait()
	m.Record(ctx, " create ", "invalid")

	totals, err := m.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{"confirm:ok": 40, "confirm:capacity": 10, "create:invalid": 1}, totals)
	assert.Equal(t, []string{"confirm:capacity", "confirm:ok", "create:invalid"}, totals.Keys())

	totals["confirm:ok"] = 0
	again, _ := m.Totals(ctx)
	assert.Equal(t, int64(40), again["confirm:ok"], "Totals returns a copy")
}

func TestRedisRecorder_Keys(t *testing.T) {
	r := NewRedisRecorder(nil, WithPrefix(":exam:stats:"), WithBucketTTL(time.Hour))
	assert.Equal(t, "exam:stats:total", r.totalKey())
	assert.Equal(t, "exam:stats:minute:203003150905",
		r.bucketKey(time.Date(2030, 3, 15, 18, 5, 0, 0, time.FixedZone("KST", 9*3600))))

	def := NewRedisRecorder(nil, WithPrefix(""))
	assert.Equal(t, "reservation:stats:total", def.totalKey())
}

func TestRedisRecorder_UnreachableServerIsBestEffort(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	r := NewRedisRecorder(rdb)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NotPanics(t, func() { r.Record(ctx, "create", "ok") })
	_, err := r.Totals(ctx)
	assert.Error(t, err)

	var nilRecorder *RedisRecorder
	assert.NotPanics(t, func() { nilRecorder.Record(ctx, "create", "ok") })
}
