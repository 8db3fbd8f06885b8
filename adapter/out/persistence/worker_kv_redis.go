package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"triage_worker/core/port/out"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces stored entries apart from the run lock
	// (triage:lock:*) and limiter (triage:ratelimit:*) keys.
	DefaultRedisPrefix = "triage:kv:"

	scanBatch = 200
)

// RedisKV stores entries as plain Redis strings under a key prefix.
type RedisKV struct {
	client *redis.Client
	prefix string
}

var _ out.KVStore = (*RedisKV)(nil)

func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// List walks the keyspace with SCAN and fetches values in MGET batches.
func (r *RedisKV) List(ctx context.Context, prefix string) (map[string]string, error) {
	match := r.listPattern(prefix)
	result := make(map[string]string)

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("redis mget: %w", err)
			}
			for i, v := range values {
				// deleted between SCAN and MGET
				s, ok := v.(string)
				if !ok {
					continue
				}
				result[strings.TrimPrefix(keys[i], r.prefix)] = s
			}
		}
		if next == 0 {
			return result, nil
		}
		cursor = next
	}
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisKV) Close() error {
	return nil
}

func (r *RedisKV) listPattern(prefix string) string {
	return globEscape(r.prefix+prefix) + "*"
}

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
