// Package auth serves native account registration, login, session probes and
// profile management. Responses that carry a human-readable message localize
// it with the request locale.
package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/i18n"
	"github.com/consulta/advisor-service/internal/identity"
	"github.com/consulta/advisor-service/internal/model"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts the auth routes. Called after store initialization so
// the store and session authenticator are available.
func MountRoutes(r *gin.Engine, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config, auth gin.HandlerFunc, sessions *security.SessionAuthenticator) {
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	linker := identity.NewLinker(store)

	g := r.Group("/api/auth")

	g.POST("/register", func(c *gin.Context) {
		register(c, store, hasher, linker, sessions)
	})
	g.POST("/login", func(c *gin.Context) {
		login(c, store, hasher, sessions)
	})
	g.GET("/check-user", func(c *gin.Context) {
		checkUser(c, store)
	})
	g.GET("/check-handle", func(c *gin.Context) {
		checkHandle(c, store)
	})
	g.GET("/check-token", func(c *gin.Context) {
		checkToken(c, sessions)
	})

	p := g.Group("", auth)
	p.GET("/profile", func(c *gin.Context) {
		getProfile(c, store)
	})
	p.PUT("/profile", func(c *gin.Context) {
		updateProfile(c, store, linker)
	})
	p.POST("/profile/picture", func(c *gin.Context) {
		uploadProfilePicture(c, store, files, cfg)
	})
	p.GET("/profile/picture", func(c *gin.Context) {
		getProfilePicture(c, store, files)
	})
}

type registerRequest struct {
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	BusinessType string  `json:"business_type"`
	FullName     *string `json:"full_name"`
	Nickname     *string `json:"nickname"`
	Phone        *string `json:"phone"`
	Country      *string `json:"country"`
	Gender       *string `json:"gender"`
	Handle       *string `json:"handle"`
}

func register(c *gin.Context, store registrystore.AdvisorStore, hasher security.PasswordHasher, linker *identity.Linker, sessions *security.SessionAuthenticator) {
	locale := i18n.Detect(c)
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"Email and password are required", "Требуются email и пароль")})
		return
	}

	hash, err := hasher.Hash(req.Password)
	if err != nil {
		handleError(c, err)
		return
	}

	account, err := store.CreateAccount(c.Request.Context(), registrystore.CreateAccountRequest{
		Email:            req.Email,
		PasswordHash:     hash,
		BusinessType:     req.BusinessType,
		FullName:         req.FullName,
		Nickname:         req.Nickname,
		Phone:            req.Phone,
		Country:          req.Country,
		Gender:           req.Gender,
		Handle:           req.Handle,
		NormalizedHandle: identity.NormalizedOrNil(req.Handle),
	})
	if err != nil {
		var conflict *registrystore.ConflictError
		if errors.As(err, &conflict) {
			// Duplicate registration is a 400 in this API, not a 409.
			c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
				"User already exists", "Пользователь уже существует")})
			return
		}
		handleError(c, err)
		return
	}

	linker.AutoLinkAccount(c.Request.Context(), account)

	token, _, err := sessions.IssueSession(c.Request.Context(), account.ID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": i18n.Pick(locale, "User registered successfully", "Пользователь успешно зарегистрирован"),
		"user":    userSummary(account),
		"token":   token,
	})
}

func login(c *gin.Context, store registrystore.AdvisorStore, hasher security.PasswordHasher, sessions *security.SessionAuthenticator) {
	locale := i18n.Detect(c)
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := store.GetAccountByEmail(c.Request.Context(), req.Email)
	var notFound *registrystore.NotFoundError
	if errors.As(err, &notFound) {
		// Same response as a wrong password so the endpoint does not leak
		// which emails are registered.
		c.JSON(http.StatusUnauthorized, gin.H{"error": i18n.Pick(locale,
			"Invalid credentials", "Неверные учетные данные")})
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	if !hasher.Verify(account.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": i18n.Pick(locale,
			"Invalid credentials", "Неверные учетные данные")})
		return
	}

	token, _, err := sessions.IssueSession(c.Request.Context(), account.ID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Pick(locale, "Login successful", "Вход выполнен успешно"),
		"user":    userSummary(account),
		"token":   token,
	})
}

func checkUser(c *gin.Context, store registrystore.AdvisorStore) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	_, err := store.GetAccountByEmail(c.Request.Context(), email)
	var notFound *registrystore.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": true})
}

func checkHandle(c *gin.Context, store registrystore.AdvisorStore) {
	normalized := identity.NormalizeHandle(c.Query("handle"))
	if normalized == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
		return
	}

	matches, err := store.FindAccountsByNormalizedHandle(c.Request.Context(), normalized)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": len(matches) > 0})
}

// checkToken always answers 200; validity travels in the body so clients can
// probe a stored token without tripping 401 interceptors.
func checkToken(c *gin.Context, sessions *security.SessionAuthenticator) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header {
		c.JSON(http.StatusOK, gin.H{"valid": false, "message": "no-token"})
		return
	}

	_, err := sessions.Validate(c.Request.Context(), token)
	if err != nil {
		var expired *registrystore.ExpiredError
		var notFound *registrystore.NotFoundError
		if errors.As(err, &expired) || errors.As(err, &notFound) {
			c.JSON(http.StatusOK, gin.H{"valid": false, "message": "expired-or-invalid"})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "message": "valid"})
}

func getProfile(c *gin.Context, store registrystore.AdvisorStore) {
	account, err := loadAccount(c, store)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, account)
}

func updateProfile(c *gin.Context, store registrystore.AdvisorStore, linker *identity.Linker) {
	locale := i18n.Detect(c)
	accountID := security.GetAccountID(c)

	var req struct {
		FullName      *string `json:"full_name"`
		Nickname      *string `json:"nickname"`
		Phone         *string `json:"phone"`
		Country       *string `json:"country"`
		Gender        *string `json:"gender"`
		Handle        *string `json:"handle"`
		UserRole      *string `json:"user_role"`
		BusinessStage *string `json:"business_stage"`
		BusinessNiche *string `json:"business_niche"`
		Region        *string `json:"region"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := store.UpdateAccountProfile(c.Request.Context(), accountID, registrystore.ProfileUpdate{
		FullName:         req.FullName,
		Nickname:         req.Nickname,
		Phone:            req.Phone,
		Country:          req.Country,
		Gender:           req.Gender,
		Handle:           req.Handle,
		NormalizedHandle: identity.NormalizedOrNil(req.Handle),
		UserRole:         req.UserRole,
		BusinessStage:    req.BusinessStage,
		BusinessNiche:    req.BusinessNiche,
		Region:           req.Region,
	})
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(locale,
				"User not found", "Пользователь не найден")})
			return
		}
		handleError(c, err)
		return
	}

	// A fresh handle may now match a waiting bot account.
	if req.Handle != nil {
		linker.AutoLinkAccount(c.Request.Context(), account)
	}

	c.JSON(http.StatusOK, account)
}

func uploadProfilePicture(c *gin.Context, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config) {
	locale := i18n.Detect(c)
	accountID := security.GetAccountID(c)

	file, header, err := c.Request.FormFile("profile_picture")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"No file provided", "Файл не предоставлен")})
		return
	}
	defer file.Close()

	if header.Size > cfg.ProfilePictureMaxSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"File too large (max 5MB)", "Файл слишком большой (максимум 5MB)")})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"File must be an image", "Файл должен быть изображением")})
		return
	}

	result, err := files.Store(c.Request.Context(), file, cfg.ProfilePictureMaxSize, contentType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner := identity.AccountOwner(accountID)
	meta := &model.StoredFile{
		OwnerID:     &owner,
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        result.Size,
		SHA256:      result.SHA256,
		StorageKey:  result.StorageKey,
	}
	if err := store.CreateFile(c.Request.Context(), meta); err != nil {
		handleError(c, err)
		return
	}

	previous, err := store.SetAccountProfilePicture(c.Request.Context(), accountID, &meta.ID)
	if err != nil {
		handleError(c, err)
		return
	}
	if previous != nil {
		removeStoredFile(c.Request.Context(), store, files, *previous)
	}

	account, err := loadAccount(c, store)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, account)
}

func getProfilePicture(c *gin.Context, store registrystore.AdvisorStore, files registryfilestore.FileStore) {
	locale := i18n.Detect(c)
	account, err := loadAccount(c, store)
	if err != nil {
		return
	}
	if account.ProfilePictureID == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(locale,
			"No profile picture", "Нет фото профиля")})
		return
	}

	meta, err := store.GetFile(c.Request.Context(), *account.ProfilePictureID)
	if err != nil {
		handleError(c, err)
		return
	}
	reader, err := files.Retrieve(c.Request.Context(), meta.StorageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve file"})
		return
	}
	defer reader.Close()

	c.Header("Content-Type", meta.ContentType)
	c.Header("Content-Length", strconv.FormatInt(meta.Size, 10))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

// loadAccount resolves the session account row, writing the localized 404
// itself. A nil error means the response is still open.
func loadAccount(c *gin.Context, store registrystore.AdvisorStore) (*model.Account, error) {
	locale := i18n.Detect(c)
	account, err := store.GetAccount(c.Request.Context(), security.GetAccountID(c))
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(locale,
				"User not found", "Пользователь не найден")})
			return nil, err
		}
		handleError(c, err)
		return nil, err
	}
	return account, nil
}

// removeStoredFile deletes a replaced picture's blob and metadata row.
// Failures are logged, not surfaced: the new picture is already in place.
func removeStoredFile(ctx context.Context, store registrystore.AdvisorStore, files registryfilestore.FileStore, fileID uuid.UUID) {
	meta, err := store.GetFile(ctx, fileID)
	if err != nil {
		log.Warn("Failed to load replaced profile picture", "fileId", fileID, "err", err)
		return
	}
	if err := files.Delete(ctx, meta.StorageKey); err != nil {
		log.Warn("Failed to delete replaced profile picture blob", "fileId", fileID, "err", err)
	}
	if err := store.DeleteFile(ctx, fileID); err != nil {
		log.Warn("Failed to delete replaced profile picture record", "fileId", fileID, "err", err)
	}
}

func userSummary(a *model.Account) gin.H {
	return gin.H{"id": a.ID, "email": a.Email, "business_type": a.BusinessType}
}

// --- Helpers ---

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var expired *registrystore.ExpiredError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &expired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
