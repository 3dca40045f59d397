package redis_test

import (
	"context"
	"testing"
	"time"

	"learncoins-ledger/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redis.NewRateLimitStore(client)
	ctx := context.Background()

	// An hour-long window keeps all calls below inside one window.
	window := time.Hour

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			result, err := store.Allow(ctx, "user1:wallet", 3, window)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, 3, result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
			assert.True(t, result.ResetAt.After(time.Now()))
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "user1:wallet", 3, window)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, 0, result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "user2:wallet", 5, window)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 4, result.Remaining)
	})

	t.Run("counter keys expire", func(t *testing.T) {
		_, err := store.Allow(ctx, "user3:market", 1, window)
		require.NoError(t, err)

		keys := mr.Keys()
		var found bool
		for _, k := range keys {
			if mr.TTL(k) > 0 {
				found = true
			}
		}
		assert.True(t, found, "rate limit keys must carry a TTL")
	})
}

func TestRateLimitStore_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, err := redis.NewRateLimitStore(client).Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}
