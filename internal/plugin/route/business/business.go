// Package business serves the advisor knowledge catalog: consulting
// categories and curated starter resources for each of them. The catalog is
// static localized content compiled into the binary, so these endpoints need
// neither a store nor authentication.
package business

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consulta/advisor-service/internal/i18n"
	registryroute "github.com/consulta/advisor-service/internal/registry/route"
)

//go:embed assets/categories.json
var categoriesJSON []byte

//go:embed assets/resources.json
var resourcesJSON []byte

// localized holds both translations of a catalog string.
type localized struct {
	EN string `json:"en"`
	RU string `json:"ru"`
}

func (l localized) pick(locale i18n.Locale) string {
	return i18n.Pick(locale, l.EN, l.RU)
}

type category struct {
	ID          string    `json:"id"`
	Icon        string    `json:"icon"`
	Name        localized `json:"name"`
	Description localized `json:"description"`
}

type resource struct {
	Title       localized `json:"title"`
	Type        string    `json:"type"`
	Description localized `json:"description"`
}

var (
	categories []category
	resources  map[string][]resource
)

func init() {
	if err := json.Unmarshal(categoriesJSON, &categories); err != nil {
		panic(fmt.Sprintf("business: categories.json: %v", err))
	}
	if err := json.Unmarshal(resourcesJSON, &resources); err != nil {
		panic(fmt.Sprintf("business: resources.json: %v", err))
	}
	registryroute.Register(registryroute.Plugin{
		Order: 100,
		Loader: func(r *gin.Engine) error {
			MountRoutes(r)
			return nil
		},
	})
}

// MountRoutes attaches the catalog endpoints to the engine.
func MountRoutes(r *gin.Engine) {
	g := r.Group("/api/business")
	g.GET("/categories", listCategories)
	g.GET("/resources/:category", listResources)
}

func listCategories(c *gin.Context) {
	locale := i18n.Detect(c)
	out := make([]gin.H, 0, len(categories))
	for _, cat := range categories {
		out = append(out, gin.H{
			"id":          cat.ID,
			"name":        cat.Name.pick(locale),
			"description": cat.Description.pick(locale),
			"icon":        cat.Icon,
		})
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func listResources(c *gin.Context) {
	locale := i18n.Detect(c)
	name := c.Param("category")
	// Unknown categories get an empty list rather than a 404, so clients can
	// probe without special-casing.
	out := make([]gin.H, 0)
	for _, res := range resources[name] {
		out = append(out, gin.H{
			"title":       res.Title.pick(locale),
			"type":        res.Type,
			"description": res.Description.pick(locale),
		})
	}
	c.JSON(http.StatusOK, gin.H{"category": name, "resources": out})
}
