package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "amfa"

// RedisStore persists values in Redis as plain strings keyed by
// prefix:profile:key. Values never carry a TTL.
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	profile string
}

// NewRedisStore returns a store scoped to profile. An empty prefix falls back to
// "amfa" and an empty profile to "default".
func NewRedisStore(client redis.UniversalClient, prefix, profile string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{redis: client, prefix: prefix, profile: profile}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + ":" + s.profile + ":" + string(k)
}

// Get returns the value stored under k or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, k Key) (string, error) {
	if err := checkKey(k); err != nil {
		return "", err
	}
	v, err := s.redis.Get(ctx, s.key(k)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

// Set stores value under k without expiry.
func (s *RedisStore) Set(ctx context.Context, k Key, value string) error {
	if err := checkKey(k); err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(k), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Clear deletes k. Deleting an absent key succeeds.
func (s *RedisStore) Clear(ctx context.Context, k Key) error {
	if err := checkKey(k); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, s.key(k)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
