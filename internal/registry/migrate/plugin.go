package migrate

import (
	"context"
	"fmt"
	"sort"
)

// Migrator prepares one backend's schema (relational tables, vector
// collections). Migrate must be idempotent; it runs on every startup when
// migrate-at-start is enabled and once from the migrate subcommand.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin is a registered migrator; lower Order runs first.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register queues a migrator; plugin packages call this from init().
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// RunAll executes every registered migrator in Order, stopping at the first
// failure.
func RunAll(ctx context.Context) error {
	queue := append([]Plugin(nil), plugins...)
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Order < queue[j].Order })

	for _, p := range queue {
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
