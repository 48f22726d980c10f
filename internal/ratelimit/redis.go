package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript increments the counter and sets its expiry only when the
// window starts, so later increments keep the original reset time.
var incrWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore keeps limiter state in Redis so every node shares it.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore wraps client. A nil clock means time.Now.
func NewRedisStore(client redis.UniversalClient, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

// Ping checks that the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.client == nil {
		return "", false, errors.New("redis client is nil")
	}
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (Counter, error) {
	if s.client == nil {
		return Counter{}, errors.New("redis client is nil")
	}
	ttlMS := ttl.Milliseconds()
	if ttlMS <= 0 {
		ttlMS = 1
	}

	values, err := incrWindowScript.Run(ctx, s.client, []string{key}, ttlMS).Int64Slice()
	if err != nil {
		return Counter{}, err
	}
	if len(values) != 2 {
		return Counter{}, fmt.Errorf("unexpected redis script response length %d", len(values))
	}
	return Counter{
		Value:     values[0],
		ExpiresAt: s.now().Add(time.Duration(values[1]) * time.Millisecond),
	}, nil
}
