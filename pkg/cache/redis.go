package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/warden/pkg/observability"
)

// scanBatchSize is the COUNT hint for SCAN-based pattern sweeps.
const scanBatchSize = 100

// Config holds Redis connection settings.
type Config struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// Client is the cache backend used by the cached entity stores. Values are
// JSON-encoded. The client is an optimization layer only: callers treat every
// error as a miss and fall through to the authoritative store.
type Client struct {
	rdb    *redis.Client
	logger *observability.Logger
}

// New connects to Redis and verifies the connection.
func New(cfg Config, logger *observability.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		logger: logger.WithField("component", "cache"),
	}, nil
}

// NewFromClient wraps an existing redis client (used by tests with miniredis).
func NewFromClient(rdb *redis.Client, logger *observability.Logger) *Client {
	return &Client{
		rdb:    rdb,
		logger: logger.WithField("component", "cache"),
	}
}

// Get looks up key and JSON-decodes the stored value into dest. It returns
// false on a miss. Corrupt entries are deleted and reported as a miss.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		c.rdb.Del(ctx, key)
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove deletes the given keys.
func (c *Client) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// RemoveByPattern sweeps all keys matching the glob pattern using SCAN, so
// large keyspaces are never blocked by a KEYS call.
func (c *Client) RemoveByPattern(ctx context.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return nil
}

// Tag associates keys with a tag so they can later be removed as a group.
// Tag membership lives in a redis set with the given TTL as an upper bound.
func (c *Client) Tag(ctx context.Context, tag string, ttl time.Duration, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	setKey := tagKey(tag)
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe := c.rdb.Pipeline()
	pipe.SAdd(ctx, setKey, members...)
	pipe.Expire(ctx, setKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis tag %s: %w", tag, err)
	}
	return nil
}

// RemoveByTag deletes every key associated with the tag plus the tag set
// itself.
func (c *Client) RemoveByTag(ctx context.Context, tag string) error {
	setKey := tagKey(tag)
	keys, err := c.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("redis smembers %s: %w", setKey, err)
	}
	keys = append(keys, setKey)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del tag %s: %w", tag, err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Redis exposes the underlying client for health checks.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func tagKey(tag string) string {
	return "tag:" + tag
}
