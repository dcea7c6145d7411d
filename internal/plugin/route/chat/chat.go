// Package chat serves the advisor conversation API: message exchange through
// the completion provider, conversation management, advisory context at the
// account and conversation level, history with generated-file attachments and
// semantic search over past messages.
//
// The routes accept two kinds of callers. Web clients authenticate with a
// bearer session token; the bot platform backend identifies its end user with
// a numeric platform_id instead. Both resolve to the same owner key space, so
// a linked user sees one conversation list no matter which door they came in
// through.
package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/i18n"
	"github.com/consulta/advisor-service/internal/identity"
	"github.com/consulta/advisor-service/internal/llm"
	"github.com/consulta/advisor-service/internal/model"
	registryembed "github.com/consulta/advisor-service/internal/registry/embed"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
	registryroute "github.com/consulta/advisor-service/internal/registry/route"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	registryvector "github.com/consulta/advisor-service/internal/registry/vector"
	"github.com/consulta/advisor-service/internal/report"
	"github.com/consulta/advisor-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 100,
		Loader: func(r *gin.Engine) error {
			return nil // mounting happens in StartServer once the store exists
		},
	})
}

// MountRoutes mounts the conversation API under /api/chat. The optionalAuth
// middleware validates a bearer session when one is presented; requests
// without one must carry a platform_id. embedder and vectors may be nil or
// disabled, in which case semantic search degrades to empty results.
func MountRoutes(r *gin.Engine, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config, optionalAuth gin.HandlerFunc, client *llm.Client, embedder registryembed.Embedder, vectors registryvector.VectorStore) {
	resolver := identity.NewResolver(store)

	g := r.Group("/api/chat", optionalAuth)

	g.POST("/message", func(c *gin.Context) {
		sendMessage(c, store, files, cfg, resolver, client)
	})
	g.GET("/conversations", func(c *gin.Context) {
		listConversations(c, store, resolver)
	})
	g.POST("/conversations", func(c *gin.Context) {
		createConversation(c, store, resolver)
	})
	g.GET("/history/:conversationId", func(c *gin.Context) {
		getHistory(c, store, files, cfg, resolver)
	})
	g.PUT("/conversations/:conversationId/title", func(c *gin.Context) {
		renameConversation(c, store, resolver)
	})
	g.DELETE("/conversations/:conversationId", func(c *gin.Context) {
		deleteConversation(c, store, resolver)
	})
	g.PUT("/conversations/:conversationId/context", func(c *gin.Context) {
		updateConversationContext(c, store, resolver)
	})
	g.GET("/context", func(c *gin.Context) {
		getAccountContext(c, store)
	})
	g.PUT("/context", func(c *gin.Context) {
		updateAccountContext(c, store)
	})
	g.GET("/search", func(c *gin.Context) {
		searchMessages(c, store, resolver, embedder, vectors)
	})
	g.GET("/quick-advice", func(c *gin.Context) {
		quickAdvice(c, store, client)
	})
}

type sendMessageRequest struct {
	Message        string                 `json:"message"`
	PlatformID     int64                  `json:"platform_id"`
	ConversationID *string                `json:"conversation_id"`
	Category       string                 `json:"category"`
	BusinessType   string                 `json:"business_type"`
	Language       string                 `json:"language"`
	ContextFilters *model.AdvisoryContext `json:"context_filters"`
	OutputFormat   string                 `json:"output_format"`
	Table          *report.TableSpec      `json:"table"`
}

func sendMessage(c *gin.Context, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config, resolver *identity.Resolver, client *llm.Client) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// The body language field wins over headers so bot platforms can relay
	// their users' language without rewriting request headers.
	locale := i18n.Detect(c)
	if req.Language != "" {
		locale = i18n.Parse(req.Language)
	}

	owner, ok := resolveOwner(c, resolver, req.PlatformID)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"Message is required", "Требуется сообщение")})
		return
	}

	ctx := c.Request.Context()
	conv, ok := resolveConversation(c, store, locale, owner, req)
	if !ok {
		return
	}

	// History is loaded before the new turn is appended so the provider sees
	// the conversation exactly as it stood when the user hit send.
	history, err := store.ListMessages(ctx, owner, conv.ID)
	if err != nil {
		handleError(c, err)
		return
	}

	merged, ok := mergedContext(c, store, conv.ID, req.ContextFilters)
	if !ok {
		return
	}
	businessType := req.BusinessType
	if businessType == "" {
		businessType = llm.DefaultBusinessType(locale)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: llm.SystemPrompt(locale, req.Category, businessType, merged),
	})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	reply, err := client.Complete(ctx, messages)
	if err != nil {
		// The turn still completes: the user gets a persisted apology instead
		// of an HTTP error, and can simply ask again.
		log.Error("Completion failed", "conversationId", conv.ID, "err", err)
		reply = i18n.Pick(locale,
			"Sorry, an error occurred while processing your request",
			"Извините, произошла ошибка при обработке запроса")
	}

	title, body := llm.SplitTitle(reply)
	if title == "" {
		title = llm.FallbackTitle(body)
	}

	format, table, haveTable := resolveFileRequest(req, body)
	if haveTable {
		body = report.StripIntentBlock(body)
	}

	userMsg := &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: req.Message}
	if err := store.AppendMessage(ctx, userMsg); err != nil {
		handleError(c, err)
		return
	}
	assistant := &model.Message{ConversationID: conv.ID, Role: model.RoleAssistant, Content: body}
	if err := store.AppendMessage(ctx, assistant); err != nil {
		handleError(c, err)
		return
	}

	if title != "" {
		if err := store.SetConversationTitleIfEmpty(ctx, conv.ID, title); err != nil {
			log.Warn("Failed to set conversation title", "conversationId", conv.ID, "err", err)
		}
	}

	resp := gin.H{
		"response":        body,
		"message_id":      assistant.ID,
		"timestamp":       assistant.CreatedAt.UTC().Format(time.RFC3339),
		"conversation_id": conv.ID,
	}
	if haveTable {
		// A broken table never fails the chat turn; the reply just arrives
		// without its document.
		meta, err := generateFile(ctx, store, files, cfg, owner, assistant.ID, format, table)
		if err != nil {
			log.Warn("Failed to generate report file", "conversationId", conv.ID, "format", format, "err", err)
		} else {
			resp["files"] = []fileAttachment{buildAttachment(ctx, files, meta, cfg.InlineAttachmentMaxSize)}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// resolveConversation loads the requested conversation or starts a fresh one.
// A conversation id that does not resolve for this owner is a 404: ids owned
// by someone else are indistinguishable from ids that never existed.
func resolveConversation(c *gin.Context, store registrystore.AdvisorStore, locale i18n.Locale, owner string, req sendMessageRequest) (*model.Conversation, bool) {
	ctx := c.Request.Context()

	if req.ConversationID != nil && *req.ConversationID != "" {
		id, err := uuid.Parse(*req.ConversationID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": msgConversationNotFound(locale)})
			return nil, false
		}
		conv, err := store.GetConversation(ctx, owner, id)
		if err != nil {
			var notFound *registrystore.NotFoundError
			if errors.As(err, &notFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": msgConversationNotFound(locale)})
				return nil, false
			}
			handleError(c, err)
			return nil, false
		}
		return conv, true
	}

	conv, err := store.CreateConversation(ctx, owner, nil)
	if err != nil {
		handleError(c, err)
		return nil, false
	}
	if req.ContextFilters != nil && !req.ContextFilters.IsZero() {
		if err := store.SaveConversationContext(ctx, conv.ID, *req.ContextFilters); err != nil {
			handleError(c, err)
			return nil, false
		}
	}
	return conv, true
}

// mergedContext assembles the advisory context for the system prompt:
// request filters override the conversation context, which overrides the
// account's base profile. Bot-only callers have no base profile.
func mergedContext(c *gin.Context, store registrystore.AdvisorStore, conversationID uuid.UUID, filters *model.AdvisoryContext) (model.AdvisoryContext, bool) {
	ctx := c.Request.Context()

	convCtx, err := store.GetConversationContext(ctx, conversationID)
	if err != nil {
		handleError(c, err)
		return model.AdvisoryContext{}, false
	}
	var base model.AdvisoryContext
	if accountID := security.GetAccountID(c); accountID != uuid.Nil {
		base, err = store.GetAccountBaseContext(ctx, accountID)
		if err != nil {
			handleError(c, err)
			return model.AdvisoryContext{}, false
		}
	}
	if filters == nil {
		filters = &model.AdvisoryContext{}
	}
	return model.MergeAdvisoryContexts(*filters, convCtx, base), true
}

// resolveFileRequest picks the document to generate, in priority order: an
// explicit table in the request, the machine-readable block in the reply,
// then a plain markdown table in the reply with the format guessed from the
// user's own wording.
func resolveFileRequest(req sendMessageRequest, reply string) (string, report.TableSpec, bool) {
	if req.Table != nil && len(req.Table.Headers) > 0 {
		format := req.OutputFormat
		if format == "" {
			format = "xlsx"
		}
		return format, *req.Table, true
	}
	if intent, ok := report.ExtractFileIntent(reply); ok {
		return intent.OutputFormat, intent.Table, true
	}
	if table, ok := report.ParseMarkdownTable(reply); ok {
		return report.DetectFormat(req.Message), table, true
	}
	return "", report.TableSpec{}, false
}

func generateFile(ctx context.Context, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config, owner string, messageID uuid.UUID, format string, table report.TableSpec) (*model.StoredFile, error) {
	filename, contentType, data, err := report.Build(format, table)
	if err != nil {
		return nil, err
	}
	result, err := files.Store(ctx, bytes.NewReader(data), cfg.FileMaxSize, contentType)
	if err != nil {
		return nil, err
	}
	meta := &model.StoredFile{
		OwnerID:     &owner,
		MessageID:   &messageID,
		Filename:    filename,
		ContentType: contentType,
		Size:        result.Size,
		SHA256:      result.SHA256,
		StorageKey:  result.StorageKey,
	}
	if err := store.CreateFile(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func listConversations(c *gin.Context, store registrystore.AdvisorStore, resolver *identity.Resolver) {
	owner, ok := resolveOwner(c, resolver, queryPlatformID(c))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	summaries, err := store.ListConversations(ctx, owner)
	if err != nil {
		handleError(c, err)
		return
	}
	conversations := make([]gin.H, 0, len(summaries))
	for _, s := range summaries {
		entry := gin.H{
			"id":            s.ID,
			"title":         s.Title,
			"message_count": s.MessageCount,
			"created_at":    s.CreatedAt,
			"updated_at":    s.UpdatedAt,
		}
		actx, err := store.GetConversationContext(ctx, s.ID)
		if err != nil {
			handleError(c, err)
			return
		}
		if !actx.IsZero() {
			entry["context"] = actx
		}
		conversations = append(conversations, entry)
	}
	c.JSON(http.StatusOK, gin.H{"user_id": owner, "conversations": conversations})
}

func createConversation(c *gin.Context, store registrystore.AdvisorStore, resolver *identity.Resolver) {
	var req struct {
		PlatformID int64                  `json:"platform_id"`
		Title      *string                `json:"title"`
		Context    *model.AdvisoryContext `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner, ok := resolveOwner(c, resolver, req.PlatformID)
	if !ok {
		return
	}

	title := req.Title
	if title != nil && strings.TrimSpace(*title) == "" {
		title = nil
	}
	conv, err := store.CreateConversation(c.Request.Context(), owner, title)
	if err != nil {
		handleError(c, err)
		return
	}
	if req.Context != nil && !req.Context.IsZero() {
		if err := store.SaveConversationContext(c.Request.Context(), conv.ID, *req.Context); err != nil {
			handleError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID, "created_at": conv.CreatedAt})
}

func getHistory(c *gin.Context, store registrystore.AdvisorStore, files registryfilestore.FileStore, cfg *config.Config, resolver *identity.Resolver) {
	locale := i18n.Detect(c)
	owner, ok := resolveOwner(c, resolver, queryPlatformID(c))
	if !ok {
		return
	}
	convID, ok := parseConversationID(c, msgConversationNotFound(locale))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	messages, err := store.ListMessages(ctx, owner, convID)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgConversationNotFound(locale)})
			return
		}
		handleError(c, err)
		return
	}

	ids := make([]uuid.UUID, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	metas, err := store.ListFilesByMessageIDs(ctx, ids)
	if err != nil {
		handleError(c, err)
		return
	}
	grouped := make(map[uuid.UUID][]fileAttachment)
	for i := range metas {
		meta := &metas[i]
		grouped[*meta.MessageID] = append(grouped[*meta.MessageID],
			buildAttachment(ctx, files, meta, cfg.InlineAttachmentMaxSize))
	}

	out := make([]gin.H, len(messages))
	attachments := make([]gin.H, 0)
	for i, m := range messages {
		out[i] = gin.H{
			"id":        m.ID,
			"role":      m.Role,
			"content":   m.Content,
			"timestamp": m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if atts, found := grouped[m.ID]; found {
			attachments = append(attachments, gin.H{"message_id": m.ID, "files": atts})
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": convID,
		"messages":        out,
		"count":           len(out),
		"attachments":     attachments,
	})
}

func renameConversation(c *gin.Context, store registrystore.AdvisorStore, resolver *identity.Resolver) {
	locale := i18n.Detect(c)
	var req struct {
		PlatformID int64  `json:"platform_id"`
		Title      string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner, ok := resolveOwner(c, resolver, req.PlatformID)
	if !ok {
		return
	}
	convID, ok := parseConversationID(c, msgConversationNotOwned(locale))
	if !ok {
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": i18n.Pick(locale,
			"Title is required", "Требуется заголовок")})
		return
	}
	if err := store.RenameConversation(c.Request.Context(), owner, convID, title); err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgConversationNotOwned(locale)})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "conversation_id": convID})
}

func deleteConversation(c *gin.Context, store registrystore.AdvisorStore, resolver *identity.Resolver) {
	locale := i18n.Detect(c)
	owner, ok := resolveOwner(c, resolver, queryPlatformID(c))
	if !ok {
		return
	}
	convID, ok := parseConversationID(c, msgConversationNotOwned(locale))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := store.DeleteConversation(ctx, owner, convID); err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgConversationNotOwned(locale)})
			return
		}
		handleError(c, err)
		return
	}

	// The rows are gone; vector cleanup happens asynchronously. The taskName
	// dedupes a re-enqueue if the same delete is ever replayed.
	err := store.CreateTask(ctx, "vector_store_delete", map[string]interface{}{
		"taskName":       "vector_store_delete:" + convID.String(),
		"conversationId": convID.String(),
	})
	if err != nil {
		log.Warn("Failed to enqueue vector cleanup", "conversationId", convID, "err", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "conversation_id": convID})
}

func updateConversationContext(c *gin.Context, store registrystore.AdvisorStore, resolver *identity.Resolver) {
	locale := i18n.Detect(c)
	var req struct {
		PlatformID int64                 `json:"platform_id"`
		Context    model.AdvisoryContext `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner, ok := resolveOwner(c, resolver, req.PlatformID)
	if !ok {
		return
	}
	convID, ok := parseConversationID(c, msgConversationNotFound(locale))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := store.GetConversation(ctx, owner, convID); err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgConversationNotFound(locale)})
			return
		}
		handleError(c, err)
		return
	}
	if err := store.SaveConversationContext(ctx, convID, req.Context); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Account base context is an account feature; bot-only callers keep their
// context on the conversation instead.
func getAccountContext(c *gin.Context, store registrystore.AdvisorStore) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}
	actx, err := store.GetAccountBaseContext(c.Request.Context(), accountID)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(i18n.Detect(c),
				"User not found", "Пользователь не найден")})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": identity.AccountOwner(accountID), "context": actx})
}

func updateAccountContext(c *gin.Context, store registrystore.AdvisorStore) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}
	var req struct {
		Context model.AdvisoryContext `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Goal and urgency only exist per conversation; the base profile keeps
	// the four durable fields.
	_, err := store.UpdateAccountProfile(c.Request.Context(), accountID, registrystore.ProfileUpdate{
		UserRole:      req.Context.UserRole,
		BusinessStage: req.Context.BusinessStage,
		BusinessNiche: req.Context.BusinessNiche,
		Region:        req.Context.Region,
	})
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": i18n.Pick(i18n.Detect(c),
				"User not found", "Пользователь не найден")})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func searchMessages(c *gin.Context, store registrystore.AdvisorStore, resolver *identity.Resolver, embedder registryembed.Embedder, vectors registryvector.VectorStore) {
	owner, ok := resolveOwner(c, resolver, queryPlatformID(c))
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	ctx := c.Request.Context()
	empty := gin.H{"query": query, "results": []registrystore.SearchResult{}, "count": 0}
	if embedder == nil || vectors == nil || !vectors.IsEnabled() {
		c.JSON(http.StatusOK, empty)
		return
	}
	conversationIDs, err := store.ListConversationIDs(ctx, owner)
	if err != nil {
		handleError(c, err)
		return
	}
	if len(conversationIDs) == 0 {
		c.JSON(http.StatusOK, empty)
		return
	}

	embeddings, err := embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		log.Error("Failed to embed search query", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search is unavailable"})
		return
	}
	hits, err := vectors.Search(ctx, embeddings[0], conversationIDs, limit)
	if err != nil {
		log.Error("Vector search failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search is unavailable"})
		return
	}
	if len(hits) == 0 {
		c.JSON(http.StatusOK, empty)
		return
	}

	ids := make([]uuid.UUID, len(hits))
	scores := make(map[uuid.UUID]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.MessageID
		scores[h.MessageID] = h.Score
	}
	results, err := store.FetchSearchResultDetails(ctx, owner, ids)
	if err != nil {
		handleError(c, err)
		return
	}
	for i := range results {
		results[i].Score = scores[results[i].MessageID]
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results, "count": len(results)})
}

// quickAdvice answers a one-shot advice request without touching any
// conversation. Sessions contribute the account's base profile; anonymous
// callers get generic advice.
func quickAdvice(c *gin.Context, store registrystore.AdvisorStore, client *llm.Client) {
	locale := i18n.Detect(c)
	ctx := c.Request.Context()

	category := c.Query("category")
	businessType := c.Query("business_type")
	if businessType == "" {
		businessType = llm.DefaultBusinessType(locale)
	}

	var actx model.AdvisoryContext
	if accountID := security.GetAccountID(c); accountID != uuid.Nil {
		loaded, err := store.GetAccountBaseContext(ctx, accountID)
		if err == nil {
			actx = loaded
		}
	}

	prompt := i18n.Pick(locale,
		"Give one short, practical piece of business advice for today. Be specific and actionable.",
		"Дай один короткий практичный бизнес-совет на сегодня. Будь конкретным и действенным.")
	reply, err := client.Complete(ctx, []llm.Message{
		{Role: "system", Content: llm.SystemPrompt(locale, category, businessType, actx)},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		log.Error("Quick advice completion failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": i18n.Pick(locale,
			"Sorry, an error occurred while processing your request",
			"Извините, произошла ошибка при обработке запроса")})
		return
	}
	// Nothing is persisted here, so a generated title has nowhere to go.
	_, advice := llm.SplitTitle(reply)

	if category == "" {
		category = "general"
	}
	c.JSON(http.StatusOK, gin.H{
		"advice":    advice,
		"category":  category,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Helpers ---

// resolveOwner determines whose data the request operates on. A valid session
// always wins and client-supplied ids are ignored; otherwise the platform_id
// identifies the caller. Writes the error response and reports false when the
// request identifies nobody.
func resolveOwner(c *gin.Context, resolver *identity.Resolver, platformID int64) (string, bool) {
	if accountID := security.GetAccountID(c); accountID != uuid.Nil {
		return identity.AccountOwner(accountID), true
	}
	if platformID != 0 {
		owner, err := resolver.ResolveBotOwner(c.Request.Context(), platformID)
		if err != nil {
			handleError(c, err)
			return "", false
		}
		return owner, true
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": i18n.Pick(i18n.Detect(c),
		"Authentication or platform_id required",
		"Требуется аутентификация или platform_id")})
	return "", false
}

func requireAccount(c *gin.Context) (uuid.UUID, bool) {
	accountID := security.GetAccountID(c)
	if accountID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": i18n.Pick(i18n.Detect(c),
			"Authentication required", "Требуется аутентификация")})
		return uuid.Nil, false
	}
	return accountID, true
}

func queryPlatformID(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.Query("platform_id"), 10, 64)
	return id
}

// parseConversationID reads the path parameter. Malformed ids get the same
// 404 as missing rows so probes cannot tell the two apart.
func parseConversationID(c *gin.Context, notFoundMsg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
		return uuid.Nil, false
	}
	return id, true
}

func msgConversationNotFound(locale i18n.Locale) string {
	return i18n.Pick(locale, "Conversation not found", "Разговор не найден")
}

func msgConversationNotOwned(locale i18n.Locale) string {
	return i18n.Pick(locale,
		"Conversation not found or not owned",
		"Разговор не найден или не принадлежит пользователю")
}

// fileAttachment is the wire shape of a generated document. Content is
// inlined only for blobs at or under the configured cap; larger files are
// download-only.
type fileAttachment struct {
	ID            uuid.UUID `json:"id"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"mime"`
	Size          int64     `json:"size"`
	ContentBase64 string    `json:"content_base64,omitempty"`
	DownloadURL   string    `json:"download_url"`
}

func buildAttachment(ctx context.Context, files registryfilestore.FileStore, meta *model.StoredFile, inlineMax int64) fileAttachment {
	att := fileAttachment{
		ID:          meta.ID,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		DownloadURL: "/api/files/" + meta.ID.String(),
	}
	if meta.Size > inlineMax {
		return att
	}
	reader, err := files.Retrieve(ctx, meta.StorageKey)
	if err != nil {
		log.Warn("Failed to load generated file for inlining", "fileId", meta.ID, "err", err)
		return att
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		log.Warn("Failed to read generated file for inlining", "fileId", meta.ID, "err", err)
		return att
	}
	att.ContentBase64 = base64.StdEncoding.EncodeToString(data)
	return att
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
