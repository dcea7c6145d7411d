// Package noop provides the "none" session cache: every lookup misses, so
// session validation always goes to the database. It is the default when no
// cache backend is configured.
package noop

import (
	"context"
	"time"

	"github.com/consulta/advisor-service/internal/model"
	"github.com/consulta/advisor-service/internal/registry/cache"
)

type missCache struct{}

var _ cache.SessionCache = missCache{}

func (missCache) Available() bool { return false }

func (missCache) Get(context.Context, string) (*model.Session, error) { return nil, nil }

func (missCache) Set(context.Context, string, model.Session, time.Duration) error { return nil }

func (missCache) Remove(context.Context, string) error { return nil }

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(context.Context) (cache.SessionCache, error) {
			return missCache{}, nil
		},
	})
}
