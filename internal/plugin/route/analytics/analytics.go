// Package analytics serves the curated market trend data: one leading trend
// and a ranked list of niche popularity trends. Reads localize text through
// the per-locale overlay rows; writes come from the trusted platform backend
// that curates the data, so these routes carry no session auth.
package analytics

import (
	"errors"
	"net/http"
	"strings"

	"github.com/consulta/advisor-service/internal/i18n"
	"github.com/consulta/advisor-service/internal/model"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the analytics routes under /api/analytics.
func MountRoutes(r *gin.Engine, store registrystore.AdvisorStore) {
	g := r.Group("/api/analytics")

	g.GET("/top-trend", func(c *gin.Context) {
		getTopTrend(c, store)
	})
	g.POST("/top-trend", func(c *gin.Context) {
		upsertTopTrend(c, store)
	})
	g.GET("/trends", func(c *gin.Context) {
		listTrendReports(c, store)
	})
	g.GET("/popularity-trends", func(c *gin.Context) {
		listPopularityTrends(c, store)
	})
	g.POST("/popularity-trends", func(c *gin.Context) {
		upsertPopularityTrend(c, store)
	})
}

func getTopTrend(c *gin.Context, store registrystore.AdvisorStore) {
	locale := i18n.Detect(c)
	top, err := store.GetTopTrendReport(c.Request.Context(), string(locale))
	if err != nil {
		handleError(c, err)
		return
	}
	if top == nil {
		// Nothing curated yet; clients treat the empty object as "no trend".
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, top)
}

func upsertTopTrend(c *gin.Context, store registrystore.AdvisorStore) {
	locale := i18n.Detect(c)
	var req struct {
		Name          string   `json:"name"`
		PercentChange *float64 `json:"percent_change"`
		Description   *string  `json:"description"`
		WhyPopular    *string  `json:"why_popular"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	// Description and why_popular land in the overlay for the caller's
	// locale, so a Russian curator call localizes without touching the base.
	err := store.UpsertTrendReport(c.Request.Context(), string(locale), registrystore.TrendReportUpsert{
		Name:          req.Name,
		PercentChange: req.PercentChange,
		Description:   req.Description,
		WhyPopular:    req.WhyPopular,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func listTrendReports(c *gin.Context, store registrystore.AdvisorStore) {
	locale := i18n.Detect(c)
	reports, err := store.ListTrendReports(c.Request.Context(), string(locale))
	if err != nil {
		handleError(c, err)
		return
	}
	if reports == nil {
		reports = []model.TrendReport{}
	}
	c.JSON(http.StatusOK, reports)
}

func listPopularityTrends(c *gin.Context, store registrystore.AdvisorStore) {
	locale := i18n.Detect(c)
	trends, err := store.ListPopularityTrends(c.Request.Context(), string(locale))
	if err != nil {
		handleError(c, err)
		return
	}
	if trends == nil {
		trends = []model.PopularityTrend{}
	}
	c.JSON(http.StatusOK, trends)
}

func upsertPopularityTrend(c *gin.Context, store registrystore.AdvisorStore) {
	locale := i18n.Detect(c)
	var req struct {
		Name          string   `json:"name"`
		Direction     string   `json:"direction"`
		PercentChange *float64 `json:"percent_change"`
		Notes         *string  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Direction != string(model.TrendGrowing) && req.Direction != string(model.TrendDecreasing) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be 'growing' or 'decreasing'"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	err := store.UpsertPopularityTrend(c.Request.Context(), string(locale), registrystore.PopularityTrendUpsert{
		Name:          req.Name,
		Direction:     model.TrendDirection(req.Direction),
		PercentChange: req.PercentChange,
		Notes:         req.Notes,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
