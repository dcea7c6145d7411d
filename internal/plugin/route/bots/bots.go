// Package bots serves the bot-platform ingest surface: per-interaction
// account sync, explicit link requests and record lookups. The caller is the
// trusted platform backend, so these routes carry no session auth.
package bots

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/consulta/advisor-service/internal/i18n"
	"github.com/consulta/advisor-service/internal/identity"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts the bot-platform routes. Called after store
// initialization so the store is available.
func MountRoutes(r *gin.Engine, store registrystore.AdvisorStore) {
	linker := identity.NewLinker(store)

	g := r.Group("/api/bots")

	g.POST("/sync", func(c *gin.Context) {
		sync(c, store, linker)
	})
	g.POST("/link", func(c *gin.Context) {
		link(c, store, linker)
	})
	g.GET("/check-handle", func(c *gin.Context) {
		checkHandle(c, store)
	})
	g.GET("/:platformId", func(c *gin.Context) {
		getBotAccount(c, store)
	})
}

func sync(c *gin.Context, store registrystore.AdvisorStore, linker *identity.Linker) {
	var req struct {
		PlatformID int64   `json:"platform_id"`
		Handle     *string `json:"handle"`
		FirstName  *string `json:"first_name"`
		LastName   *string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PlatformID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform_id is required"})
		return
	}

	// 201 only on first sight; a sync is otherwise a state refresh.
	created := false
	var notFound *registrystore.NotFoundError
	if _, err := store.GetBotAccount(c.Request.Context(), req.PlatformID); err != nil {
		if !errors.As(err, &notFound) {
			handleError(c, err)
			return
		}
		created = true
	}

	handle := trimToNil(req.Handle)
	bot, err := store.UpsertBotAccount(c.Request.Context(), registrystore.BotAccountUpsert{
		PlatformID:       req.PlatformID,
		Handle:           handle,
		NormalizedHandle: identity.NormalizedOrNil(handle),
		FirstName:        trimToNil(req.FirstName),
		LastName:         trimToNil(req.LastName),
	})
	if err != nil {
		handleError(c, err)
		return
	}

	linker.AutoLinkBotAccount(c.Request.Context(), bot)
	if bot.LinkedAccountID == nil {
		// Pick up a link the auto-linker may just have set.
		if fresh, err := store.GetBotAccount(c.Request.Context(), bot.PlatformID); err == nil {
			bot = fresh
		}
	}

	if created {
		c.JSON(http.StatusCreated, bot)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func link(c *gin.Context, store registrystore.AdvisorStore, linker *identity.Linker) {
	locale := i18n.Detect(c)
	var req struct {
		PlatformID int64  `json:"platform_id"`
		AccountID  string `json:"account_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PlatformID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"platform_id is required", "platform_id обязателен")})
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"account_id is required", "account_id обязателен")})
		return
	}

	if err := linker.Link(c.Request.Context(), req.PlatformID, accountID); err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			if notFound.Resource == "account" {
				c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(locale,
					"User not found", "Пользователь не найден")})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(locale,
				"Bot account not found", "Аккаунт бота не найден")})
			return
		}
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": i18n.Pick(locale,
		"Bot account linked successfully", "Аккаунт бота успешно привязан")})
}

func getBotAccount(c *gin.Context, store registrystore.AdvisorStore) {
	locale := i18n.Detect(c)
	platformID, err := strconv.ParseInt(c.Param("platformId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(locale,
			"Bot account not found", "Аккаунт бота не найден")})
		return
	}

	bot, err := store.GetBotAccount(c.Request.Context(), platformID)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(locale,
				"Bot account not found", "Аккаунт бота не найден")})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func checkHandle(c *gin.Context, store registrystore.AdvisorStore) {
	normalized := identity.NormalizeHandle(c.Query("handle"))
	if normalized == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
		return
	}

	matches, err := store.FindBotAccountsByNormalizedHandle(c.Request.Context(), normalized)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": len(matches) > 0})
}

// --- Helpers ---

// trimToNil maps absent and blank strings to nil so the platform's empty
// fields clear the stored values instead of storing "".
func trimToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
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
