// Package legal serves legal documents bundled with the binary.
package legal

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consulta/advisor-service/internal/i18n"
	registryroute "github.com/consulta/advisor-service/internal/registry/route"
)

//go:embed assets/privacy_policy.md
var privacyPolicyEN []byte

//go:embed assets/privacy_policy.ru.md
var privacyPolicyRU []byte

const markdownContentType = "text/markdown; charset=utf-8"

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 100,
		Loader: func(r *gin.Engine) error {
			MountRoutes(r)
			return nil
		},
	})
}

// MountRoutes attaches the legal document endpoints to the engine.
func MountRoutes(r *gin.Engine) {
	r.GET("/api/legal/privacy-policy", privacyPolicy)
}

func privacyPolicy(c *gin.Context) {
	body := privacyPolicyEN
	if i18n.Detect(c) == i18n.LocaleRU {
		body = privacyPolicyRU
	}
	c.Data(http.StatusOK, markdownContentType, body)
}
