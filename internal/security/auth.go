package security

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	registrycache "github.com/consulta/advisor-service/internal/registry/cache"
	"github.com/consulta/advisor-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/consulta/advisor-service/internal/model"
)

const (
	// ContextKeyAccountID is the gin context key for the authenticated account ID.
	ContextKeyAccountID = "accountID"
	// ContextKeySession is the gin context key for the resolved session.
	ContextKeySession = "session"
)

// SessionAuthenticator issues and validates bearer session tokens. It is
// initialized once at startup and shared by the HTTP middleware and the
// auth routes.
type SessionAuthenticator struct {
	store    store.AdvisorStore
	cache    registrycache.SessionCache
	lifetime time.Duration
	cacheTTL time.Duration
}

// NewSessionAuthenticator creates a SessionAuthenticator. cache may be nil
// or unavailable; validation then always hits the store.
func NewSessionAuthenticator(s store.AdvisorStore, c registrycache.SessionCache, lifetime, cacheTTL time.Duration) *SessionAuthenticator {
	return &SessionAuthenticator{store: s, cache: c, lifetime: lifetime, cacheTTL: cacheTTL}
}

// Lifetime returns the configured session lifetime.
func (a *SessionAuthenticator) Lifetime() time.Duration { return a.lifetime }

// IssueSession creates a session for the account and returns the raw token
// alongside the stored row. Only the token's digest is persisted.
func (a *SessionAuthenticator) IssueSession(ctx context.Context, accountID uuid.UUID) (string, *model.Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return "", nil, err
	}
	now := time.Now().UTC()
	session := &model.Session{
		ID:          uuid.New(),
		TokenDigest: TokenDigest(token),
		AccountID:   accountID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(a.lifetime),
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return "", nil, err
	}
	if SessionsIssuedTotal != nil {
		SessionsIssuedTotal.Inc()
	}
	return token, session, nil
}

// Validate resolves a presented token to its session. Unknown tokens yield
// store.NotFoundError and lapsed ones store.ExpiredError; callers map both
// to 401. Expiry is checked here, after the cache, so a cached row can never
// outlive the session it mirrors.
func (a *SessionAuthenticator) Validate(ctx context.Context, token string) (*model.Session, error) {
	digest := TokenDigest(token)

	var session *model.Session
	if a.cache != nil && a.cache.Available() {
		cached, err := a.cache.Get(ctx, digest)
		if err != nil {
			log.Debug("Session cache get failed", "err", err)
		}
		if cached != nil {
			session = cached
			if CacheHitsTotal != nil {
				CacheHitsTotal.Inc()
			}
		} else if CacheMissesTotal != nil {
			CacheMissesTotal.Inc()
		}
	}

	if session == nil {
		s, err := a.store.GetSessionByDigest(ctx, digest)
		if err != nil {
			return nil, err
		}
		session = s
		if a.cache != nil && a.cache.Available() {
			if err := a.cache.Set(ctx, digest, *session, a.cacheTTL); err != nil {
				log.Debug("Session cache set failed", "err", err)
			}
		}
	}

	if !session.ExpiresAt.After(time.Now()) {
		return nil, &store.ExpiredError{Resource: "session", ID: session.ID.String()}
	}
	return session, nil
}

// --- Gin HTTP middleware ---

// GetAccountID returns the authenticated account ID from the gin context.
func GetAccountID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ContextKeyAccountID)
	id, _ := v.(uuid.UUID)
	return id
}

// GetSession returns the resolved session from the gin context.
func GetSession(c *gin.Context) *model.Session {
	v, _ := c.Get(ContextKeySession)
	s, _ := v.(*model.Session)
	return s
}

// AuthMiddleware returns a gin middleware that resolves the Authorization
// bearer token into a session and stores the account ID in the request
// context. Requests without a valid, unexpired session are rejected with 401.
func AuthMiddleware(auth *SessionAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			log.Info("Auth rejected: missing Authorization header", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			log.Info("Auth rejected: invalid Authorization header; expected Bearer token", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header; expected Bearer token"})
			return
		}

		session, err := auth.Validate(c.Request.Context(), token)
		if err != nil {
			var expired *store.ExpiredError
			var notFound *store.NotFoundError
			switch {
			case errors.As(err, &expired):
				log.Info("Auth rejected: session expired", "method", c.Request.Method, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			case errors.As(err, &notFound):
				log.Info("Auth rejected: unknown session token", "method", c.Request.Method, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			default:
				log.Error("Auth: session lookup failed", "err", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.Set(ContextKeyAccountID, session.AccountID)
		c.Set(ContextKeySession, session)
		c.Next()
	}
}

// OptionalAuthMiddleware is AuthMiddleware for routes that also serve bot
// platform callers: a presented bearer token must still be valid, but a
// request without an Authorization header passes through unauthenticated and
// the handler decides how to identify the caller.
func OptionalAuthMiddleware(auth *SessionAuthenticator) gin.HandlerFunc {
	required := AuthMiddleware(auth)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		required(c)
	}
}
