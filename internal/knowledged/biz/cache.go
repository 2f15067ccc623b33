package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/synaptiq/knowledged/internal/model"
	jsonutil "github.com/synaptiq/knowledged/pkg/utils/json"
)

// QueryCacheConfig configures the answer cache.
type QueryCacheConfig struct {
	// Enabled toggles the cache; a disabled cache is a no-op.
	Enabled bool
	// TTL is how long a cached answer lives.
	TTL time.Duration
	// KeyPrefix namespaces the cache keys in Redis.
	KeyPrefix string
}

// QueryCache caches non-streaming answers per (organization, question).
// Streamed chat answers are never cached; a replayed stream would bypass
// the generation contract.
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache creates the cache. config may be nil, which disables it.
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "knowledged:query:",
		}
	}
	return &QueryCache{redis: redis, config: config}
}

// cacheKey hashes the tenant and question together so identical questions
// from different organizations never share an entry.
func (c *QueryCache) cacheKey(orgURL, question string) string {
	hash := sha256.Sum256([]byte(orgURL + "\x00" + question))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached result or (nil, nil) on a miss.
func (c *QueryCache) Get(ctx context.Context, orgURL, question string) (*model.QueryResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil
	}

	key := c.cacheKey(orgURL, question)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		logger.Warnw("cache read failed", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.QueryResult
	if err := jsonutil.Unmarshal(data, &result); err != nil {
		logger.Warnw("dropping corrupt cache entry", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	result.Cached = true
	logger.Infow("cache hit", "org_url", orgURL, "key", key)
	return &result, nil
}

// Set stores a result under the (org, question) key.
func (c *QueryCache) Set(ctx context.Context, orgURL, question string, result *model.QueryResult) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	data, err := jsonutil.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}

	key := c.cacheKey(orgURL, question)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("cache write failed", "error", err.Error(), "key", key)
		return err
	}
	return nil
}

// Clear removes every cached answer under the configured prefix.
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return err
	}

	logger.Infow("query cache cleared", "deleted", deleted)
	return nil
}

// Stats reports cache size and configuration.
func (c *QueryCache) Stats(ctx context.Context) (map[string]any, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]any{"enabled": false}, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	keys := 0
	for iter.Next(ctx) {
		keys++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keys,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
