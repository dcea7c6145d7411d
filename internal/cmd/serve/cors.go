package serve

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsMiddleware echoes the request origin back when it is allowed, so
// credentialed requests work without ever sending a literal "*". An empty
// allowlist admits any origin.
func corsMiddleware(originsCSV string) gin.HandlerFunc {
	allowed := splitOrigins(originsCSV)
	return func(c *gin.Context) {
		if origin := strings.TrimSpace(c.GetHeader("Origin")); allowed.contains(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept-Language")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type originSet struct {
	any     bool
	origins map[string]struct{}
}

func (s originSet) contains(origin string) bool {
	if origin == "" {
		return false
	}
	if s.any {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func splitOrigins(raw string) originSet {
	origins := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			origins[v] = struct{}{}
		}
	}
	_, wildcard := origins["*"]
	return originSet{
		any:     len(origins) == 0 || (wildcard && len(origins) == 1),
		origins: origins,
	}
}
