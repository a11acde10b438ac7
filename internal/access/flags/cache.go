package flags

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/config"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
)

const cacheKeyPrefix = "flag:"

// Cache is a read-through Redis cache for flag definitions. A nil *Cache is
// valid and always misses, so deployments without Redis need no branching at
// call sites. Cache failures degrade to store reads, never to errors.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewCache connects to Redis per config. Returns nil when no address is
// configured, which disables caching entirely.
func NewCache(cfg *config.RedisConfig, log *logger.Logger) *Cache {
	if cfg == nil || cfg.Addr == "" {
		return nil
	}
	ttl := cfg.FlagTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: log.WithComponent("flag-cache"),
	}
}

// Get returns the cached flag for key, or (nil, false) on miss or error.
func (c *Cache) Get(ctx context.Context, flagKey string) (*domain.FeatureFlag, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+flagKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("flag_key", flagKey).Msg("flag cache read failed")
		}
		return nil, false
	}
	var flag domain.FeatureFlag
	if err := json.Unmarshal(raw, &flag); err != nil {
		c.logger.Warn().Err(err).Str("flag_key", flagKey).Msg("flag cache entry corrupt")
		return nil, false
	}
	return &flag, true
}

// Set stores the flag definition under its key with the configured TTL.
func (c *Cache) Set(ctx context.Context, flag *domain.FeatureFlag) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(flag)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+flag.FlagKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("flag_key", flag.FlagKey).Msg("flag cache write failed")
	}
}

// Invalidate drops the cached definition after an admin mutation.
func (c *Cache) Invalidate(ctx context.Context, flagKey string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKeyPrefix+flagKey).Err(); err != nil {
		c.logger.Warn().Err(err).Str("flag_key", flagKey).Msg("flag cache invalidation failed")
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Health reports Redis connectivity for the health endpoint.
func (c *Cache) Health(ctx context.Context) map[string]string {
	if c == nil {
		return map[string]string{"status": "disabled"}
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "unhealthy", "error": err.Error()}
	}
	return map[string]string{"status": "healthy"}
}
