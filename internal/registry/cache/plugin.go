package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/consulta/advisor-service/internal/model"
)

// SessionCache caches resolved sessions by token digest, shaving a database
// round trip off hot-path auth checks. Expiry is still enforced by the
// caller, so entries only need a short TTL. Get returns (nil, nil) on a miss.
type SessionCache interface {
	Available() bool
	Get(ctx context.Context, digest string) (*model.Session, error)
	Set(ctx context.Context, digest string, session model.Session, ttl time.Duration) error
	Remove(ctx context.Context, digest string) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (SessionCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var byName = map[string]Plugin{}

// Register adds a cache plugin. Duplicate names panic.
func Register(p Plugin) {
	if _, taken := byName[p.Name]; taken {
		panic("cache plugin " + p.Name + " registered twice")
	}
	byName[p.Name] = p
}

// Names lists the registered cache plugins in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("no %q cache plugin (have: %s)", name, strings.Join(Names(), ", "))
	}
	return p.Loader, nil
}
