package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetRecordingStatus(ctx context.Context, recordingID uuid.UUID, status string, ttl time.Duration) error
	GetRecordingStatus(ctx context.Context, recordingID uuid.UUID) (string, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	AcquireProcessingLock(ctx context.Context, recordingID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseProcessingLock(ctx context.Context, recordingID uuid.UUID) error
	IsProcessing(ctx context.Context, recordingID uuid.UUID) (bool, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// SetRecordingStatus mirrors a recording's pipeline status so polling
// clients don't hit Postgres on every request. Postgres stays the source
// of truth; a missing key just falls through to the database.
func (c *RedisCache) SetRecordingStatus(ctx context.Context, recordingID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, RecordingStatusKey(recordingID), status, ttl).Err()
}

func (c *RedisCache) GetRecordingStatus(ctx context.Context, recordingID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, RecordingStatusKey(recordingID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// AcquireProcessingLock takes the per-recording advisory lock. It returns
// false when another run already holds it, which is how a reprocess of an
// in-flight recording gets rejected. The TTL bounds lock leakage if a
// worker dies without releasing.
func (c *RedisCache) AcquireProcessingLock(ctx context.Context, recordingID uuid.UUID, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, ProcessingLockKey(recordingID), "1", ttl).Result()
}

func (c *RedisCache) ReleaseProcessingLock(ctx context.Context, recordingID uuid.UUID) error {
	return c.client.Del(ctx, ProcessingLockKey(recordingID)).Err()
}

func (c *RedisCache) IsProcessing(ctx context.Context, recordingID uuid.UUID) (bool, error) {
	n, err := c.client.Exists(ctx, ProcessingLockKey(recordingID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
