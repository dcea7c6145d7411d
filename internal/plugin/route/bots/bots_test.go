package bots_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/plugin/route/bots"
	_ "github.com/consulta/advisor-service/internal/plugin/store/postgres"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/testutil/testpg"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBotsRouter(t *testing.T) (*gin.Engine, registrystore.AdvisorStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	bots.MountRoutes(router, store)
	return router, store, ctx
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func createAccount(t *testing.T, store registrystore.AdvisorStore, ctx context.Context, email string, handle *string) string {
	t.Helper()
	var normalized *string
	if handle != nil {
		normalized = handle
	}
	account, err := store.CreateAccount(ctx, registrystore.CreateAccountRequest{
		Email:            email,
		PasswordHash:     "$2a$04$fakefakefakefakefakefakefakefakefakefakefakefakefake",
		BusinessType:     "retail",
		Handle:           handle,
		NormalizedHandle: normalized,
	})
	require.NoError(t, err)
	return account.ID.String()
}

func TestSyncCreatesAndRefreshes(t *testing.T) {
	router, _, _ := setupBotsRouter(t)

	first := doJSON(t, router, http.MethodPost, "/api/bots/sync", map[string]any{
		"platform_id": 42001,
		"handle":      "@Eve",
		"first_name":  "Eve",
	})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decode(t, first)
	assert.Equal(t, float64(42001), created["platform_id"])
	assert.Equal(t, "@Eve", created["handle"])
	assert.Equal(t, "Eve", created["first_name"])

	// Re-sync refreshes the record and reports 200; blank fields clear.
	second := doJSON(t, router, http.MethodPost, "/api/bots/sync", map[string]any{
		"platform_id": 42001,
		"handle":      "@EveOnline",
		"first_name":  "",
	})
	require.Equal(t, http.StatusOK, second.Code)
	refreshed := decode(t, second)
	assert.Equal(t, "@EveOnline", refreshed["handle"])
	assert.NotContains(t, refreshed, "first_name")

	missing := doJSON(t, router, http.MethodPost, "/api/bots/sync", map[string]any{"handle": "x"})
	require.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestSyncAutoLinksOnHandleMatch(t *testing.T) {
	router, store, ctx := setupBotsRouter(t)

	accountID := createAccount(t, store, ctx, "frank@example.com", strPtr("frank_smb"))

	w := doJSON(t, router, http.MethodPost, "/api/bots/sync", map[string]any{
		"platform_id": 42002,
		"handle":      "@Frank_SMB",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	// The sync response already reflects the automatic link.
	assert.Equal(t, accountID, decode(t, w)["linked_account_id"])
}

func TestExplicitLink(t *testing.T) {
	router, store, ctx := setupBotsRouter(t)

	accountID := createAccount(t, store, ctx, "grace@example.com", nil)
	otherID := createAccount(t, store, ctx, "heidi@example.com", nil)

	sync := doJSON(t, router, http.MethodPost, "/api/bots/sync", map[string]any{"platform_id": 42003})
	require.Equal(t, http.StatusCreated, sync.Code)

	link := doJSON(t, router, http.MethodPost, "/api/bots/link", map[string]any{
		"platform_id": 42003, "account_id": accountID,
	})
	require.Equal(t, http.StatusOK, link.Code, link.Body.String())
	assert.Equal(t, "Bot account linked successfully", decode(t, link)["message"])

	// Re-asserting the identical link succeeds.
	again := doJSON(t, router, http.MethodPost, "/api/bots/link", map[string]any{
		"platform_id": 42003, "account_id": accountID,
	})
	require.Equal(t, http.StatusOK, again.Code)

	// A different account cannot claim a linked bot.
	conflict := doJSON(t, router, http.MethodPost, "/api/bots/link", map[string]any{
		"platform_id": 42003, "account_id": otherID,
	})
	require.Equal(t, http.StatusConflict, conflict.Code)

	// Unknown sides are distinct 404s.
	noBot := doJSON(t, router, http.MethodPost, "/api/bots/link", map[string]any{
		"platform_id": 99999, "account_id": accountID,
	})
	require.Equal(t, http.StatusNotFound, noBot.Code)
	assert.Equal(t, "Bot account not found", decode(t, noBot)["error"])

	sync2 := doJSON(t, router, http.MethodPost, "/api/bots/sync", map[string]any{"platform_id": 42004})
	require.Equal(t, http.StatusCreated, sync2.Code)
	noAccount := doJSON(t, router, http.MethodPost, "/api/bots/link", map[string]any{
		"platform_id": 42004, "account_id": "b3bb9b02-85e7-4663-a0a2-9fc5a8a23a4f",
	})
	require.Equal(t, http.StatusNotFound, noAccount.Code)
	assert.Equal(t, "User not found", decode(t, noAccount)["error"])

	badBody := doJSON(t, router, http.MethodPost, "/api/bots/link", map[string]any{
		"platform_id": 42004, "account_id": "not-a-uuid",
	})
	require.Equal(t, http.StatusBadRequest, badBody.Code)
}

func TestGetAndProbe(t *testing.T) {
	router, _, _ := setupBotsRouter(t)

	sync := doJSON(t, router, http.MethodPost, "/api/bots/sync", map[string]any{
		"platform_id": 42005, "handle": "ivan_retail",
	})
	require.Equal(t, http.StatusCreated, sync.Code)

	get := doJSON(t, router, http.MethodGet, "/api/bots/42005", nil)
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "ivan_retail", decode(t, get)["handle"])

	missing := doJSON(t, router, http.MethodGet, "/api/bots/12345678", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "Bot account not found", decode(t, missing)["error"])

	missingRU := doJSON(t, router, http.MethodGet, "/api/bots/12345678?lang=ru", nil)
	require.Equal(t, http.StatusNotFound, missingRU.Code)
	assert.Equal(t, "Аккаунт бота не найден", decode(t, missingRU)["error"])

	probe := doJSON(t, router, http.MethodGet, "/api/bots/check-handle?handle=@Ivan_Retail", nil)
	require.Equal(t, http.StatusOK, probe.Code)
	assert.Equal(t, true, decode(t, probe)["exists"])

	probeMiss := doJSON(t, router, http.MethodGet, "/api/bots/check-handle?handle=nobody", nil)
	require.Equal(t, http.StatusOK, probeMiss.Code)
	assert.Equal(t, false, decode(t, probeMiss)["exists"])
}

func strPtr(s string) *string { return &s }
