package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"intake/pkg/platform/sentinel"
)

const (
	// Redis key prefix for document blobs
	blobKeyPrefix = "intake:blob:"

	fieldContentType = "content_type"
	fieldData        = "data"
)

// RedisStore keeps each blob in a Redis hash keyed by its content ref.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisStore instance.
type RedisOption func(*RedisStore)

// WithTTL expires blobs after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = d
	}
}

// NewRedis constructs a Redis-backed blob store.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Store writes the blob with HSET in a MULTI/EXEC pipeline so the hash and its
// expiry land together.
func (s *RedisStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := ContentRef(data)
	key := blobKeyPrefix + ref
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldContentType, contentType, fieldData, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store blob %s: %w: %w", ref, sentinel.ErrUnavailable, err)
	}
	return ref, nil
}

func (s *RedisStore) Fetch(ctx context.Context, ref string) (*Object, error) {
	fields, err := s.client.HGetAll(ctx, blobKeyPrefix+ref).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch blob %s: %w: %w", ref, sentinel.ErrUnavailable, err)
	}
	// HGETALL answers a missing key with an empty hash
	data, ok := fields[fieldData]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", ref, sentinel.ErrNotFound)
	}
	return &Object{
		Ref:         ref,
		ContentType: fields[fieldContentType],
		Data:        []byte(data),
	}, nil
}
