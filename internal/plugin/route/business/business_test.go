package business

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupBusinessRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	MountRoutes(router)
	return router
}

func doGET(t *testing.T, router *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
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

func items(t *testing.T, body map[string]any, key string) []map[string]any {
	t.Helper()
	raw, ok := body[key].([]any)
	require.True(t, ok, "expected %q to be a list", key)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		require.True(t, ok)
		out = append(out, m)
	}
	return out
}

func TestListCategories(t *testing.T) {
	router := setupBusinessRouter(t)

	w := doGET(t, router, "/api/business/categories")
	require.Equal(t, http.StatusOK, w.Code)
	cats := items(t, decode(t, w), "categories")
	require.Len(t, cats, 5)

	ids := make([]string, 0, len(cats))
	for _, cat := range cats {
		ids = append(ids, cat["id"].(string))
	}
	require.Equal(t, []string{"legal", "marketing", "finance", "management", "general"}, ids)

	require.Equal(t, "Legal", cats[0]["name"])
	require.Equal(t, "⚖️", cats[0]["icon"])
	require.Contains(t, cats[0]["description"], "Registration")
	require.Equal(t, "💼", cats[4]["icon"])
}

func TestListCategoriesRussian(t *testing.T) {
	router := setupBusinessRouter(t)

	w := doGET(t, router, "/api/business/categories?lang=ru")
	require.Equal(t, http.StatusOK, w.Code)
	cats := items(t, decode(t, w), "categories")
	require.Equal(t, "Юридические вопросы", cats[0]["name"])
	require.Contains(t, cats[1]["description"], "SMM")

	// The Accept-Language header works when no explicit override is given.
	w = doGET(t, router, "/api/business/categories", "Accept-Language", "ru-RU,ru;q=0.9")
	cats = items(t, decode(t, w), "categories")
	require.Equal(t, "Маркетинг и продажи", cats[1]["name"])
}

func TestListResources(t *testing.T) {
	router := setupBusinessRouter(t)

	w := doGET(t, router, "/api/business/resources/legal")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "legal", body["category"])
	res := items(t, body, "resources")
	require.Len(t, res, 2)
	require.Equal(t, "Business registration", res[0]["title"])
	require.Equal(t, "guide", res[0]["type"])
	require.Equal(t, "checklist", res[1]["type"])

	w = doGET(t, router, "/api/business/resources/legal?lang=ru")
	res = items(t, decode(t, w), "resources")
	require.Equal(t, "Регистрация бизнеса", res[0]["title"])
	require.Contains(t, res[0]["description"], "Пошаговое")

	w = doGET(t, router, "/api/business/resources/marketing")
	res = items(t, decode(t, w), "resources")
	require.Equal(t, "template", res[0]["type"])
	require.Equal(t, "worksheet", res[1]["type"])
}

func TestListResourcesUnknownCategory(t *testing.T) {
	router := setupBusinessRouter(t)

	// Categories without curated material answer with an empty list, not 404.
	for _, name := range []string{"management", "space-tourism"} {
		w := doGET(t, router, "/api/business/resources/"+name)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		require.Equal(t, name, body["category"])
		require.Empty(t, items(t, body, "resources"))
	}
}
