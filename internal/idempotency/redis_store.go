package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fundvault:idempotency:"

// RedisStore 基于 redis 的幂等键存储, 多实例共享
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 创建 redis 幂等键存储
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	pending, err := json.Marshal(entry{})
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Response, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, false, fmt.Errorf("decode idempotency entry: %w", err)
	}
	if e.Response == nil {
		return nil, false, nil
	}
	return e.Response, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	val, err := json.Marshal(entry{Response: resp})
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
