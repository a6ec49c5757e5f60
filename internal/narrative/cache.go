package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecg-guardrail-server/internal/domain"
)

const cacheKeyPrefix = "ecg:narrative:"

// Cache stores accepted generator outputs by input hash.
type Cache interface {
	Get(ctx context.Context, key string) (domain.NarrativeOutput, bool, error)
	Set(ctx context.Context, key string, out domain.NarrativeOutput, ttl time.Duration) error
}

// cachedNarrative is the stored envelope.
type cachedNarrative struct {
	Data      domain.NarrativeOutput `json:"data"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config.DefaultTTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &RedisCache{redis: client, defaultTTL: defaultTTL}
}

// Get returns a cached output. A miss, an expired entry and a corrupt entry
// all report found=false.
func (c *RedisCache) Get(ctx context.Context, key string) (domain.NarrativeOutput, bool, error) {
	val, err := c.redis.Get(ctx, cacheKeyPrefix+key).Result()
	if err == redis.Nil {
		return domain.NarrativeOutput{}, false, nil
	}
	if err != nil {
		return domain.NarrativeOutput{}, false, fmt.Errorf("failed to get narrative cache: %w", err)
	}

	var cached cachedNarrative
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, cacheKeyPrefix+key)
		return domain.NarrativeOutput{}, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, cacheKeyPrefix+key)
		return domain.NarrativeOutput{}, false, nil
	}

	return cached.Data, true, nil
}

// Set stores an output. A zero ttl uses the default.
func (c *RedisCache) Set(ctx context.Context, key string, out domain.NarrativeOutput, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	data, err := json.Marshal(cachedNarrative{Data: out, CachedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("failed to marshal narrative cache data: %w", err)
	}

	return c.redis.Set(ctx, cacheKeyPrefix+key, data, ttl).Err()
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
