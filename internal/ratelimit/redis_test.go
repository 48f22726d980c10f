package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStoreForTest(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, NewRedisStore(client, nil)
}

func newUnreachableRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  20 * time.Millisecond,
		ReadTimeout:  20 * time.Millisecond,
		WriteTimeout: 20 * time.Millisecond,
		MaxRetries:   -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, nil)
}

func TestRedisStore_IncrSetsExpiryOnce(t *testing.T) {
	m, s := newRedisStoreForTest(t)
	ctx := context.Background()

	c, err := s.Incr(ctx, "rate_limit:count:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Value)
	assert.Equal(t, time.Minute, m.TTL("rate_limit:count:x"))

	m.FastForward(20 * time.Second)
	c, err = s.Incr(ctx, "rate_limit:count:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Value)
	assert.Equal(t, 40*time.Second, m.TTL("rate_limit:count:x"))
	assert.WithinDuration(t, time.Now().Add(40*time.Second), c.ExpiresAt, time.Second)

	m.FastForward(40 * time.Second)
	c, err = s.Incr(ctx, "rate_limit:count:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Value)
}

func TestRedisStore_GetSet(t *testing.T) {
	m, s := newRedisStoreForTest(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "123", 5*time.Second))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123", v)

	m.FastForward(5 * time.Second)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()

	nilStore := NewRedisStore(nil, nil)
	assert.Error(t, nilStore.Ping(ctx))
	_, _, err := nilStore.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, nilStore.Set(ctx, "k", "v", time.Second))
	_, err = nilStore.Incr(ctx, "k", time.Second)
	assert.Error(t, err)

	bad := newUnreachableRedisStore(t)
	assert.Error(t, bad.Ping(ctx))
	_, err = bad.Incr(ctx, "k", time.Second)
	assert.Error(t, err)

	_, good := newRedisStoreForTest(t)
	assert.NoError(t, good.Ping(ctx))
}
