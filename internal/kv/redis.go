package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient adapts a go-redis connection to the Client contract.
type RedisClient struct {
	rdb *redis.Client
}

func NewRedisClient(addr, password string, db int) *RedisClient {
	return &RedisClient{
		rdb: redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    password,
			DB:          db,
			DialTimeout: 5 * time.Second,
		}),
	}
}

// NewRedisClientFromHostPort builds the address from separate host and port
// values as they appear in the environment.
func NewRedisClientFromHostPort(host string, port, db int) *RedisClient {
	return NewRedisClient(fmt.Sprintf("%s:%d", host, port), "", db)
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (bool, error) {
	if onlyIfAbsent {
		return c.rdb.SetNX(ctx, key, value, ttl).Result()
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisClient) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	return int(n), err
}

func (c *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *RedisClient) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	// go-redis reports -2 for a missing key and -1 for a key without expiry.
	switch d {
	case -2:
		return 0, false, nil
	case -1:
		return 0, true, nil
	}
	return d, true, nil
}
