package session

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the record under a single redis key with no expiry.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key}
}

// NewRedisStoreFromURL parses a redis:// URL and dials lazily.
func NewRedisStoreFromURL(rawURL, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, ErrConfig
	}
	return NewRedisStore(redis.NewClient(opts), key), nil
}

// Name implements BlobStore.
func (s *RedisStore) Name() string { return "redis" }

// ReadBlob implements BlobStore.
func (s *RedisStore) ReadBlob(ctx context.Context) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// WriteBlob implements BlobStore.
func (s *RedisStore) WriteBlob(ctx context.Context, blob []byte) error {
	return s.rdb.Set(ctx, s.key, blob, 0).Err()
}

// Ping checks connectivity (readiness).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
