package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/model"
	registrycache "github.com/consulta/advisor-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.SessionCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: ADVISOR_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.SessionCacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates a SessionCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.SessionCache, error) {
	return LoadFromURLWithTTL(ctx, redisURL, defaultTTL)
}

// LoadFromURLWithTTL creates a cache with an explicit default session TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.SessionCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisSessionCache{client: client, ttl: ttl}, nil
}

type redisSessionCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func sessionKey(digest string) string {
	return "advisor-session:" + digest
}

func (c *redisSessionCache) Available() bool {
	return true
}

func (c *redisSessionCache) Get(ctx context.Context, digest string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(digest)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *redisSessionCache) Set(ctx context.Context, digest string, session model.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, sessionKey(digest), data, ttl).Err()
}

func (c *redisSessionCache) Remove(ctx context.Context, digest string) error {
	return c.client.Del(ctx, sessionKey(digest)).Err()
}

var _ registrycache.SessionCache = (*redisSessionCache)(nil)
