// Package files serves generated report downloads. File ids are unguessable
// UUIDs handed out inside chat responses; messenger-bot callers have no
// session token, so the download URL itself is the capability and the route
// mounts without auth middleware.
package files

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/i18n"
	"github.com/consulta/advisor-service/internal/model"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
)

// MountRoutes attaches the file download endpoint to the engine.
func MountRoutes(r *gin.Engine, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config) {
	r.GET("/api/files/:fileId", func(c *gin.Context) {
		download(c, store, files, cfg)
	})
}

func download(c *gin.Context, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config) {
	locale := i18n.Detect(c)
	notFound := func() {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "not_found",
			"error": i18n.Pick(locale, "File not found", "Файл не найден"),
		})
	}

	fileID, err := uuid.Parse(c.Param("fileId"))
	if err != nil {
		notFound()
		return
	}

	meta, err := store.GetFile(c.Request.Context(), fileID)
	if err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			notFound()
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// Backends that can presign (s3) hand the client a direct URL; the db
	// backend returns nil and we stream the bytes ourselves.
	if signed, err := files.GetSignedURL(c.Request.Context(), meta.StorageKey, cfg.FileDownloadURLExpiresIn); err == nil && signed != nil {
		c.Redirect(http.StatusFound, signed.String())
		return
	}

	stream(c, files, meta)
}

func stream(c *gin.Context, files registryfilestore.FileStore, meta *model.StoredFile) {
	reader, err := files.Retrieve(c.Request.Context(), meta.StorageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve file"})
		return
	}
	defer reader.Close()

	if meta.SHA256 != "" {
		etag := fmt.Sprintf("%q", meta.SHA256)
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Header("Cache-Control", "private, max-age=300, immutable")
			c.Status(http.StatusNotModified)
			return
		}
	}

	c.Header("Cache-Control", "private, max-age=300, immutable")
	c.Header("Content-Type", meta.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Filename))
	c.Header("Content-Length", strconv.FormatInt(meta.Size, 10))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}
