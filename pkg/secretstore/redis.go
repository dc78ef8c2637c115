package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a Store backed by Redis. Entries never expire; the
// session deletes them on reset.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromAddr dials addr with the given password.
func NewRedisStoreFromAddr(addr, password, prefix string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	return NewRedisStore(rdb, prefix)
}

func (r *RedisStore) redisKey(service, account string) string {
	return r.prefix + key(service, account)
}

func (r *RedisStore) Save(ctx context.Context, service, account string, data []byte) error {
	if err := r.client.Set(ctx, r.redisKey(service, account), data, 0).Err(); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (r *RedisStore) Read(ctx context.Context, service, account string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.redisKey(service, account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis read: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Delete(ctx context.Context, service, account string) error {
	if err := r.client.Del(ctx, r.redisKey(service, account)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
