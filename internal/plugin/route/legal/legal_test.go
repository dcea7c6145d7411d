package legal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupLegalRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	MountRoutes(router)
	return router
}

func TestPrivacyPolicy(t *testing.T) {
	router := setupLegalRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/legal/privacy-policy", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/markdown; charset=utf-8", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "# Privacy Policy")
	require.Contains(t, w.Body.String(), "Session tokens")
}

func TestPrivacyPolicyRussian(t *testing.T) {
	router := setupLegalRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/legal/privacy-policy?lang=ru", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Политика конфиденциальности")

	req := httptest.NewRequest(http.MethodGet, "/api/legal/privacy-policy", nil)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Contains(t, w.Body.String(), "Токены сессий")
}
