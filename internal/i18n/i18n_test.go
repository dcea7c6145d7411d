package i18n_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/consulta/advisor-service/internal/i18n"
)

func ginContext(t *testing.T, target string, header map[string]string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	for k, v := range header {
		c.Request.Header.Set(k, v)
	}
	return c
}

func TestParse(t *testing.T) {
	assert.Equal(t, i18n.LocaleRU, i18n.Parse("ru"))
	assert.Equal(t, i18n.LocaleRU, i18n.Parse("RU-ru"))
	assert.Equal(t, i18n.LocaleRU, i18n.Parse(" ru "))
	assert.Equal(t, i18n.LocaleEN, i18n.Parse("en"))
	assert.Equal(t, i18n.LocaleEN, i18n.Parse("de"))
	assert.Equal(t, i18n.LocaleEN, i18n.Parse(""))
}

func TestDetectQueryWins(t *testing.T) {
	c := ginContext(t, "/api/analytics/trends?lang=ru", map[string]string{"Accept-Language": "en-US"})
	assert.Equal(t, i18n.LocaleRU, i18n.Detect(c))

	// An explicit unsupported lang forces English even for Russian browsers.
	c = ginContext(t, "/api/analytics/trends?lang=de", map[string]string{"Accept-Language": "ru-RU,ru;q=0.9"})
	assert.Equal(t, i18n.LocaleEN, i18n.Detect(c))
}

func TestDetectAcceptLanguage(t *testing.T) {
	c := ginContext(t, "/api/analytics/trends", map[string]string{"Accept-Language": "ru-RU,ru;q=0.9,en;q=0.8"})
	assert.Equal(t, i18n.LocaleRU, i18n.Detect(c))

	c = ginContext(t, "/api/analytics/trends", map[string]string{"Accept-Language": "en-US,en;q=0.9"})
	assert.Equal(t, i18n.LocaleEN, i18n.Detect(c))

	c = ginContext(t, "/api/analytics/trends", nil)
	assert.Equal(t, i18n.LocaleEN, i18n.Detect(c))
}

func TestPick(t *testing.T) {
	assert.Equal(t, "Invalid credentials", i18n.Pick(i18n.LocaleEN, "Invalid credentials", "Неверные учетные данные"))
	assert.Equal(t, "Неверные учетные данные", i18n.Pick(i18n.LocaleRU, "Invalid credentials", "Неверные учетные данные"))
}

func TestDirectionLabel(t *testing.T) {
	assert.Equal(t, "рост", i18n.DirectionLabel(i18n.LocaleRU, "growing"))
	assert.Equal(t, "снижение", i18n.DirectionLabel(i18n.LocaleRU, "decreasing"))
	assert.Equal(t, "growing", i18n.DirectionLabel(i18n.LocaleEN, "growing"))
	assert.Equal(t, "sideways", i18n.DirectionLabel(i18n.LocaleRU, "sideways"))
}
