package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_NormalOperations(t *testing.T) {
	s := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "source-cache", zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, wrapper.Ping(ctx).Err())
	require.NoError(t, wrapper.Set(ctx, "sources:abc", `[{"url":"https://a"}]`, time.Minute).Err())

	got := wrapper.Get(ctx, "sources:abc")
	require.NoError(t, got.Err())
	assert.Equal(t, `[{"url":"https://a"}]`, got.Val())

	s.FastForward(2 * time.Minute)
	assert.Equal(t, redis.Nil, wrapper.Get(ctx, "sources:abc").Err())

	require.NoError(t, wrapper.Set(ctx, "sources:def", "x", 0).Err())
	del := wrapper.Del(ctx, "sources:def")
	require.NoError(t, del.Err())
	assert.Equal(t, int64(1), del.Val())

	assert.False(t, wrapper.IsCircuitBreakerOpen())
}

func TestRedisWrapper_CircuitBreakerTriggering(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:9999",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "source-cache", zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.Error(t, wrapper.Ping(ctx).Err())
	}

	assert.True(t, wrapper.IsCircuitBreakerOpen())
	assert.ErrorIs(t, wrapper.Get(ctx, "any:key").Err(), ErrCircuitBreakerOpen)
}

func TestRedisWrapper_RedisNilHandling(t *testing.T) {
	s := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "source-cache", zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.Equal(t, redis.Nil, wrapper.Get(ctx, "nonexistent:key").Err())
	}
	assert.False(t, wrapper.IsCircuitBreakerOpen())
}
