package pkg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"jobdef"

	"github.com/redis/go-redis/v9"
)

// RedisSet stores a value in Redis with a TTL. The value is JSON-serialized.
func RedisSet(key string, value any, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return jobdef.Redis.Set(ctx, key, data, ttl).Err()
}

// RedisGet retrieves a value from Redis and JSON-deserializes it into dest.
// Returns redis.Nil if the key does not exist.
func RedisGet(key string, dest any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := jobdef.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// RedisDelete removes a key from Redis.
func RedisDelete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return jobdef.Redis.Del(ctx, key).Err()
}

// IsRedisNil returns true if the error is a redis key-not-found error.
func IsRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// RedisCache exposes the helpers above as a key-value cache
type RedisCache struct{}

func (RedisCache) Get(key string, dest any) error { return RedisGet(key, dest) }
func (RedisCache) Set(key string, value any, ttl time.Duration) error {
	return RedisSet(key, value, ttl)
}
func (RedisCache) Delete(key string) error { return RedisDelete(key) }
func (RedisCache) IsMiss(err error) bool   { return IsRedisNil(err) }
