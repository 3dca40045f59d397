package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyCache_SetAndGet(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewIdempotencyCache(client)
	ctx := context.Background()

	key := "0b7c7e52-5a53-4b43-9d38-0b5b1f0e6d11:transfer:retry-1"
	value := []byte(`{"debit_record":{"amount":"30"}}`)

	result, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, cache.Set(ctx, key, value, 24*time.Hour))

	result, err = cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestIdempotencyCache_FirstResponseWins(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewIdempotencyCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte(`{"first":true}`), time.Hour))
	require.NoError(t, cache.Set(ctx, "k", []byte(`{"first":false}`), time.Hour))

	result, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"first":true}`, string(result))
}

func TestIdempotencyCache_Expiry(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewIdempotencyCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte(`{}`), time.Minute))
	assert.True(t, s.Exists("lms:idempotency:k"))

	s.FastForward(2 * time.Minute)

	result, err := cache.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestIdempotencyCache_ConnectionError(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewIdempotencyCache(client)
	s.Close()

	_, err := cache.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, cache.Set(context.Background(), "k", []byte("v"), time.Minute))
}
