package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// RouterLoader mounts a plugin's routes on the gin engine.
type RouterLoader func(r *gin.Engine) error

// RouteType says which listener a plugin's routes belong on.
type RouteType int

const (
	// RouteTypeMain mounts on the public API listener.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement mounts on the management listener (health, metrics).
	// Without a dedicated management port these land on the main listener.
	RouteTypeManagement
)

// Plugin is a route plugin; Order fixes the mount sequence.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var plugins []Plugin

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func loadersOf(t RouteType) []RouterLoader {
	mounted := make([]Plugin, 0, len(plugins))
	for _, p := range plugins {
		if p.Type == t {
			mounted = append(mounted, p)
		}
	}
	sort.SliceStable(mounted, func(i, j int) bool { return mounted[i].Order < mounted[j].Order })

	loaders := make([]RouterLoader, len(mounted))
	for i, p := range mounted {
		loaders[i] = p.Loader
	}
	return loaders
}

// MainRouteLoaders returns the main-listener loaders in mount order.
func MainRouteLoaders() []RouterLoader {
	return loadersOf(RouteTypeMain)
}

// ManagementRouteLoaders returns the management-listener loaders in mount order.
func ManagementRouteLoaders() []RouterLoader {
	return loadersOf(RouteTypeManagement)
}
