package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Store backed by a Redis server.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at url (redis://...) and
// verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	s := NewRedisStoreFromClient(redis.NewClient(opts))
	if err := s.Ping(ctx); err != nil {
		s.client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return s, nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, translateErr(err)
	}

	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return translateErr(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return translateErr(s.client.Del(ctx, key).Err())
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	if err != nil {
		return nil, translateErr(err)
	}

	return data, nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return translateErr(s.client.HSet(ctx, key, field, value).Err())
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, translateErr(err)
	}

	fields := make(map[string][]byte, len(res))
	for k, v := range res {
		fields[k] = []byte(v)
	}

	return fields, nil
}

func (s *RedisStore) HDel(ctx context.Context, key, field string) error {
	return translateErr(s.client.HDel(ctx, key, field).Err())
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return translateErr(s.client.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return ErrNil
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) && strings.HasPrefix(redisErr.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %v", ErrWrongType, err)
	}

	return err
}
