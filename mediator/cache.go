package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache implementations when a key is absent.
var ErrCacheMiss = errors.New("mediator: cache miss")

// Checker answers mediator membership questions.
type Checker interface {
	IsAuthorized(ctx context.Context, disputeID uint64, identity string) (bool, error)
}

// Cache is the subset of a key/value store used by CachedRegistry.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CachedRegistry is a read-through cache in front of a Checker. Cache failures
// degrade to the underlying checker.
type CachedRegistry struct {
	next        Checker
	cache       Cache
	ttl         time.Duration
	negativeTTL time.Duration
	logger      *slog.Logger
}

// defaultTTL replaces non-positive TTLs, which redis would treat as "never
// expire" and so keep revoked mediators authorized.
const defaultTTL = time.Minute

func NewCachedRegistry(next Checker, cache Cache, ttl time.Duration) *CachedRegistry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	neg := ttl / 4
	if neg <= 0 {
		neg = time.Second
	}
	return &CachedRegistry{
		next:        next,
		cache:       cache,
		ttl:         ttl,
		negativeTTL: neg,
		logger:      slog.Default().With("module", "mediator"),
	}
}

func (c *CachedRegistry) IsAuthorized(ctx context.Context, disputeID uint64, identity string) (bool, error) {
	if identity == "" {
		return false, nil
	}
	key := cacheKey(disputeID, identity)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		if v, convErr := strconv.ParseBool(raw); convErr == nil {
			return v, nil
		}
	case !errors.Is(err, ErrCacheMiss):
		c.logger.WarnContext(ctx, "mediator cache read failed", "key", key, "error", err.Error())
	}

	ok, err := c.next.IsAuthorized(ctx, disputeID, identity)
	if err != nil {
		return false, err
	}

	ttl := c.ttl
	if !ok {
		ttl = c.negativeTTL
	}
	if err := c.cache.Set(ctx, key, strconv.FormatBool(ok), ttl); err != nil {
		c.logger.WarnContext(ctx, "mediator cache write failed", "key", key, "error", err.Error())
	}
	return ok, nil
}

func cacheKey(disputeID uint64, identity string) string {
	return "mediator:auth:" + strconv.FormatUint(disputeID, 10) + ":" + identity
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("mediator: parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mediator: ping redis: %w", err)
	}
	return client, nil
}
