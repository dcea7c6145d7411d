package memory

import (
	"context"
	"time"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/model"
	registrycache "github.com/consulta/advisor-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "memory",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.SessionCache, error) {
	ttl := defaultTTL
	if cfg := config.FromContext(ctx); cfg != nil && cfg.SessionCacheTTL > 0 {
		ttl = cfg.SessionCacheTTL
	}
	return New(ttl)
}

// New creates an in-process session cache. Suited to single-instance
// deployments where a shared Redis is not worth running; writes are
// best-effort and may be dropped under admission pressure.
func New(ttl time.Duration) (registrycache.SessionCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, model.Session]{
		NumCounters: 100_000, // ~10x the expected live session count
		MaxCost:     10_000,  // sessions, each with cost 1
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &memorySessionCache{cache: c, ttl: ttl}, nil
}

type memorySessionCache struct {
	cache *ristretto.Cache[string, model.Session]
	ttl   time.Duration
}

func (c *memorySessionCache) Available() bool { return true }

func (c *memorySessionCache) Get(_ context.Context, digest string) (*model.Session, error) {
	if session, ok := c.cache.Get(digest); ok {
		return &session, nil
	}
	return nil, nil
}

func (c *memorySessionCache) Set(_ context.Context, digest string, session model.Session, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(digest, session, 1, ttl)
	return nil
}

func (c *memorySessionCache) Remove(_ context.Context, digest string) error {
	c.cache.Del(digest)
	return nil
}

var _ registrycache.SessionCache = (*memorySessionCache)(nil)
