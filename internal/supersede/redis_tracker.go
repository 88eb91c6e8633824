package supersede

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker shares sequence numbers between API and worker processes.
type RedisTracker struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

func NewRedisTracker(client redis.UniversalClient, keyPrefix string, ttl time.Duration) (*RedisTracker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "pixelgrade:seq"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTracker{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (r *RedisTracker) Issue(ctx context.Context, session string) (uint64, error) {
	key := r.key(session)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("issue sequence session=%s: %w", session, err)
	}
	seq, err := incr.Uint64()
	if err != nil {
		return 0, fmt.Errorf("parse sequence session=%s: %w", session, err)
	}
	return seq, nil
}

func (r *RedisTracker) Latest(ctx context.Context, session string) (uint64, error) {
	seq, err := r.client.Get(ctx, r.key(session)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load sequence session=%s: %w", session, err)
	}
	return seq, nil
}

func (r *RedisTracker) key(session string) string {
	return r.keyPrefix + ":" + session
}
