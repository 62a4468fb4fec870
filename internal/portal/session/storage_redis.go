package session

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps the entries under "<prefix>:<key>" so several portal
// profiles can share one Redis.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "hrportal:session"
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) key(name string) string {
	return r.prefix + ":" + name
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (r *RedisStorage) SetAll(ctx context.Context, entries map[string]string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range entries {
			pipe.Set(ctx, r.key(key), value, 0)
		}
		return nil
	})
	return err
}

func (r *RedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = r.key(key)
	}
	if err := r.client.Del(ctx, names...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
