package serve

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestIsStreamingRequest(t *testing.T) {
	cases := []struct {
		name        string
		path        string
		contentType string
		want        bool
	}{
		{"multipart profile picture upload", "/api/auth/profile/picture", "multipart/form-data; boundary=abc123", true},
		{"json body on the same path", "/api/auth/profile/picture", "application/json", false},
		{"json body elsewhere", "/api/chat/message", "application/json", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader("body"))
			req.Header.Set("Content-Type", tc.contentType)
			require.Equal(t, tc.want, isStreamingRequest(req))
		})
	}
}

func TestMaxBodySizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// send posts a 10-byte body through a router capped at 4 bytes and returns
	// the recorded response. The handler echoes how many bytes it could read.
	send := func(path, contentType string) *httptest.ResponseRecorder {
		router := gin.New()
		router.Use(maxBodySizeMiddleware(4))
		router.POST(path, func(c *gin.Context) {
			n, err := io.Copy(io.Discard, c.Request.Body)
			if err != nil {
				c.Status(http.StatusRequestEntityTooLarge)
				return
			}
			c.String(http.StatusOK, "%d", n)
		})

		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("0123456789"))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("multipart uploads bypass the cap", func(t *testing.T) {
		rec := send("/api/auth/profile/picture", "multipart/form-data; boundary=abc123")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "10", rec.Body.String())
	})

	t.Run("json bodies over the cap are rejected", func(t *testing.T) {
		rec := send("/api/chat/message", "application/json")
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}
