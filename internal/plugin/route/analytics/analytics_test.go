package analytics_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/plugin/route/analytics"
	_ "github.com/consulta/advisor-service/internal/plugin/store/postgres"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/testutil/testpg"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAnalyticsRouter(t *testing.T) *gin.Engine {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	analytics.MountRoutes(router, store)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var payload []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func TestTopTrendUpsertAndLocaleOverlay(t *testing.T) {
	router := setupAnalyticsRouter(t)

	// The migration seeds curated trends, so the singleton always answers.
	seeded := doJSON(t, router, http.MethodGet, "/api/analytics/top-trend", nil)
	require.Equal(t, http.StatusOK, seeded.Code)
	require.NotEmpty(t, decode(t, seeded)["name"])

	w := doJSON(t, router, http.MethodPost, "/api/analytics/top-trend", map[string]any{
		"name":           "qr-menus",
		"percent_change": 22.5,
		"description":    "Cafes replace printed menus with QR codes.",
		"why_popular":    "No reprint costs and instant price updates.",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ok", decode(t, w)["status"])

	// The freshest upsert becomes the leading trend.
	top := decode(t, doJSON(t, router, http.MethodGet, "/api/analytics/top-trend", nil))
	assert.Equal(t, "qr-menus", top["name"])
	assert.Equal(t, 22.5, top["percent_change"])
	assert.Contains(t, top["description"], "QR codes")

	// A Russian curator call writes the ru overlay without touching the base.
	w = doJSON(t, router, http.MethodPost, "/api/analytics/top-trend?lang=ru", map[string]any{
		"name":        "qr-menus",
		"description": "Кафе заменяют печатные меню QR-кодами.",
	})
	require.Equal(t, http.StatusOK, w.Code)

	localized := decode(t, doJSON(t, router, http.MethodGet, "/api/analytics/top-trend?lang=ru", nil))
	assert.Equal(t, "qr-menus", localized["name"])
	assert.Contains(t, localized["description"], "QR-кодами")
	// Omitted percent change keeps the stored value.
	assert.Equal(t, 22.5, localized["percent_change"])

	base := decode(t, doJSON(t, router, http.MethodGet, "/api/analytics/top-trend", nil))
	assert.Contains(t, base["description"], "QR codes")

	missingName := doJSON(t, router, http.MethodPost, "/api/analytics/top-trend", map[string]any{
		"name": "   ",
	})
	require.Equal(t, http.StatusBadRequest, missingName.Code)
}

func TestTrendReportsRanking(t *testing.T) {
	router := setupAnalyticsRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/analytics/trends", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reports := decodeList(t, w)
	require.GreaterOrEqual(t, len(reports), 3)
	// Ranked by percent change, best first.
	assert.Equal(t, "ai-automation", reports[0]["name"])
	assert.Contains(t, reports[0]["description"], "AI assistants")

	localized := decodeList(t, doJSON(t, router, http.MethodGet, "/api/analytics/trends?lang=ru", nil))
	assert.Equal(t, "ai-automation", localized[0]["name"])
	assert.Contains(t, localized[0]["description"], "ИИ")
}

func TestPopularityTrends(t *testing.T) {
	router := setupAnalyticsRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/analytics/popularity-trends", nil)
	require.Equal(t, http.StatusOK, w.Code)
	trends := decodeList(t, w)
	require.GreaterOrEqual(t, len(trends), 3)
	assert.Equal(t, "online-education", trends[0]["name"])
	assert.Equal(t, "growing", trends[0]["direction"])

	bad := doJSON(t, router, http.MethodPost, "/api/analytics/popularity-trends", map[string]any{
		"name": "crystal-healing", "direction": "sideways",
	})
	require.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "direction must be 'growing' or 'decreasing'", decode(t, bad)["error"])

	w = doJSON(t, router, http.MethodPost, "/api/analytics/popularity-trends", map[string]any{
		"name":           "pet-grooming",
		"direction":      "growing",
		"percent_change": 7.7,
		"notes":          "Urban pet ownership keeps climbing.",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = doJSON(t, router, http.MethodPost, "/api/analytics/popularity-trends?lang=ru", map[string]any{
		"name":      "pet-grooming",
		"direction": "growing",
		"notes":     "Городских питомцев становится больше.",
	})
	require.Equal(t, http.StatusOK, w.Code)

	find := func(trends []map[string]any, name string) map[string]any {
		for _, trend := range trends {
			if trend["name"] == name {
				return trend
			}
		}
		return nil
	}

	en := find(decodeList(t, doJSON(t, router, http.MethodGet, "/api/analytics/popularity-trends", nil)), "pet-grooming")
	require.NotNil(t, en)
	assert.Equal(t, "Urban pet ownership keeps climbing.", en["notes"])
	assert.Equal(t, 7.7, en["percent_change"])

	ru := find(decodeList(t, doJSON(t, router, http.MethodGet, "/api/analytics/popularity-trends?lang=ru", nil)), "pet-grooming")
	require.NotNil(t, ru)
	assert.Equal(t, "Городских питомцев становится больше.", ru["notes"])

	missingName := doJSON(t, router, http.MethodPost, "/api/analytics/popularity-trends", map[string]any{
		"direction": "growing",
	})
	require.Equal(t, http.StatusBadRequest, missingName.Code)
}
