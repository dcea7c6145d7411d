// Package system mounts the operational endpoints: the public health probe,
// the liveness/readiness pair, and the Prometheus scrape target.
package system

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/consulta/advisor-service/internal/registry/route"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var ready atomic.Bool

// MarkReady signals that the service has finished initializing and is ready to
// serve traffic. Call this once StartServer has completed successfully.
func MarkReady() {
	ready.Store(true)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  0,
		Type:   registryroute.RouteTypeMain,
		Loader: mountPublic,
	})
	registryroute.Register(registryroute.Plugin{
		Order:  0,
		Type:   registryroute.RouteTypeManagement,
		Loader: mountOps,
	})
}

// mountPublic serves /health on the API listener itself. Bot platforms and
// the web client ping it to decide whether the backend is reachable, so it
// stays on the public port rather than the management one.
func mountPublic(r *gin.Engine) error {
	r.GET("/health", health)
	return nil
}

func mountOps(r *gin.Engine) error {
	r.GET("/health/live", liveness)
	r.GET("/health/ready", readiness)
	r.GET("/q/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// liveness answers as long as the process is up.
func liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readiness flips to 200 once startup has finished.
func readiness(c *gin.Context) {
	if ready.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
}
