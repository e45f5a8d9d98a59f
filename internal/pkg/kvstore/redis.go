package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisNamespace Redis 键的默认前缀。
const DefaultRedisNamespace = "todoapp:"

// RedisStore 将每个键保存为一个 Redis 字符串（无过期时间）。
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a store with address/password.
func NewRedisStore(addr, password string, db int, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		namespace: namespace,
	}
}

// NewRedisStoreWithClient creates a store from an existing redis.Client.
func NewRedisStoreWithClient(rdb *redis.Client, namespace string) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &RedisStore{rdb: rdb, namespace: namespace}, nil
}

// Client 返回底层 Redis 客户端（供限流等组件复用连接）。
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.namespace+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
