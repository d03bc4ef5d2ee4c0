package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/victorivanov/courier/internal/models"
)

// Client wraps a Redis connection for rate limiting and the profile cache.
type Client struct {
	rdb *goredis.Client
}

// NewClient creates a Redis client from a URL and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

const (
	profilePrefix = "profile:"
	profileTTL    = 5 * time.Minute
)

// rateLimitScript atomically increments a counter, sets its TTL on first use,
// and returns both the count and the remaining TTL.
var rateLimitScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// CheckRateLimit runs a fixed-window counter. It returns whether the request
// is allowed, the current count, and the window's remaining TTL in millis.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, int64, error) {
	res, err := rateLimitScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("checking rate limit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, 0, fmt.Errorf("checking rate limit: unexpected script result")
	}
	count, ttlMs := res[0], res[1]
	return count <= int64(limit), count, ttlMs, nil
}

// CacheProfile stores a profile in the cache with a short TTL.
func (c *Client) CacheProfile(ctx context.Context, p models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}
	key := profilePrefix + strconv.FormatInt(p.UserID, 10)
	return c.rdb.Set(ctx, key, data, profileTTL).Err()
}

// GetCachedProfile returns a cached profile, or nil on a miss.
func (c *Client) GetCachedProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	key := profilePrefix + strconv.FormatInt(userID, 10)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cached profile: %w", err)
	}
	p := &models.Profile{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("unmarshaling cached profile: %w", err)
	}
	return p, nil
}

// InvalidateProfile drops a profile from the cache.
func (c *Client) InvalidateProfile(ctx context.Context, userID int64) error {
	key := profilePrefix + strconv.FormatInt(userID, 10)
	return c.rdb.Del(ctx, key).Err()
}
