package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/model"
	_ "github.com/consulta/advisor-service/internal/plugin/store/postgres"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.AdvisorStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	// Run migrations
	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	// Initialize store
	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)

	return store, ctx
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func createTestAccount(t *testing.T, store registrystore.AdvisorStore, ctx context.Context, email string, handle *string) *model.Account {
	t.Helper()
	var normalized *string
	if handle != nil {
		n := *handle
		normalized = &n
	}
	account, err := store.CreateAccount(ctx, registrystore.CreateAccountRequest{
		Email:            email,
		PasswordHash:     "$2a$04$fakefakefakefakefakefakefakefakefakefakefakefakefake",
		BusinessType:     "retail",
		Handle:           handle,
		NormalizedHandle: normalized,
	})
	require.NoError(t, err)
	return account
}

func TestCreateAndGetAccount(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "Owner@Example.com", strPtr("alice"))
	assert.Equal(t, "owner@example.com", account.Email)
	assert.Equal(t, "retail", account.BusinessType)

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	// Lookup by email is case-insensitive because the stored value is lowered.
	byEmail, err := store.GetAccountByEmail(ctx, "OWNER@example.COM")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)

	// Duplicate email registration conflicts.
	_, err = store.CreateAccount(ctx, registrystore.CreateAccountRequest{
		Email:        "owner@example.com",
		PasswordHash: "x",
		BusinessType: "retail",
	})
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = store.GetAccount(ctx, uuid.New())
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdateAccountProfile(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "profile@example.com", strPtr("bob"))

	// Only provided fields change.
	updated, err := store.UpdateAccountProfile(ctx, account.ID, registrystore.ProfileUpdate{
		FullName: strPtr("Bob Builder"),
		Country:  strPtr("DE"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, "Bob Builder", *updated.FullName)
	require.NotNil(t, updated.Handle)
	assert.Equal(t, "bob", *updated.Handle)

	// A second partial update keeps earlier values.
	updated, err = store.UpdateAccountProfile(ctx, account.ID, registrystore.ProfileUpdate{
		Nickname: strPtr("bobby"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, "Bob Builder", *updated.FullName)
	require.NotNil(t, updated.Country)
	assert.Equal(t, "DE", *updated.Country)

	// An explicit empty handle clears both the handle and the matching key.
	updated, err = store.UpdateAccountProfile(ctx, account.ID, registrystore.ProfileUpdate{
		Handle: strPtr(""),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Handle)
	assert.Nil(t, updated.NormalizedHandle)

	matches, err := store.FindAccountsByNormalizedHandle(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = store.UpdateAccountProfile(ctx, uuid.New(), registrystore.ProfileUpdate{Nickname: strPtr("x")})
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSetAccountProfilePicture(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "pic@example.com", nil)

	first := uuid.New()
	previous, err := store.SetAccountProfilePicture(ctx, account.ID, &first)
	require.NoError(t, err)
	assert.Nil(t, previous)

	second := uuid.New()
	previous, err = store.SetAccountProfilePicture(ctx, account.ID, &second)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, first, *previous)

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProfilePictureID)
	assert.Equal(t, second, *got.ProfilePictureID)
}

func TestUpsertBotAccount(t *testing.T) {
	store, ctx := setupTestStore(t)

	bot, err := store.UpsertBotAccount(ctx, registrystore.BotAccountUpsert{
		PlatformID:       1001,
		Handle:           strPtr("@Carol"),
		NormalizedHandle: strPtr("carol"),
		FirstName:        strPtr("Carol"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), bot.PlatformID)
	assert.Nil(t, bot.LinkedAccountID)

	// A later interaction overwrites the mutable fields.
	bot, err = store.UpsertBotAccount(ctx, registrystore.BotAccountUpsert{
		PlatformID:       1001,
		Handle:           strPtr("@CarolNew"),
		NormalizedHandle: strPtr("carolnew"),
		LastName:         strPtr("Smith"),
	})
	require.NoError(t, err)
	require.NotNil(t, bot.Handle)
	assert.Equal(t, "@CarolNew", *bot.Handle)
	require.NotNil(t, bot.LastName)
	assert.Equal(t, "Smith", *bot.LastName)
	assert.Nil(t, bot.FirstName, "absent fields overwrite to NULL")

	// The upsert never touches an existing link.
	account := createTestAccount(t, store, ctx, "carol@example.com", nil)
	require.NoError(t, store.SetLink(ctx, 1001, account.ID))

	bot, err = store.UpsertBotAccount(ctx, registrystore.BotAccountUpsert{
		PlatformID: 1001,
		Handle:     strPtr("@CarolAgain"),
	})
	require.NoError(t, err)
	require.NotNil(t, bot.LinkedAccountID)
	assert.Equal(t, account.ID, *bot.LinkedAccountID)
}

func TestSetLink(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "link@example.com", nil)
	other := createTestAccount(t, store, ctx, "other@example.com", nil)

	_, err := store.UpsertBotAccount(ctx, registrystore.BotAccountUpsert{PlatformID: 2001})
	require.NoError(t, err)
	_, err = store.UpsertBotAccount(ctx, registrystore.BotAccountUpsert{PlatformID: 2002})
	require.NoError(t, err)

	require.NoError(t, store.SetLink(ctx, 2001, account.ID))

	// Re-asserting the identical link succeeds without changing anything.
	require.NoError(t, store.SetLink(ctx, 2001, account.ID))

	// The bot account cannot be re-pointed at a different native account.
	err = store.SetLink(ctx, 2001, other.ID)
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	// The native account cannot be claimed by a second bot account.
	err = store.SetLink(ctx, 2002, account.ID)
	require.ErrorAs(t, err, &conflict)

	// Both sides are unchanged after the failed attempts.
	bot, err := store.GetBotAccount(ctx, 2001)
	require.NoError(t, err)
	require.NotNil(t, bot.LinkedAccountID)
	assert.Equal(t, account.ID, *bot.LinkedAccountID)

	bot, err = store.GetBotAccount(ctx, 2002)
	require.NoError(t, err)
	assert.Nil(t, bot.LinkedAccountID)

	var notFound *registrystore.NotFoundError
	err = store.SetLink(ctx, 9999, account.ID)
	assert.ErrorAs(t, err, &notFound)
	err = store.SetLink(ctx, 2002, uuid.New())
	assert.ErrorAs(t, err, &notFound)

	linked, err := store.GetBotAccountByLinkedAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2001), linked.PlatformID)
}

func TestSetLinkConcurrent(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "race@example.com", nil)

	const contenders = 8
	for i := 0; i < contenders; i++ {
		_, err := store.UpsertBotAccount(ctx, registrystore.BotAccountUpsert{PlatformID: int64(3000 + i)})
		require.NoError(t, err)
	}

	// All contenders race to claim the same native account; the partial
	// unique index lets exactly one through.
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.SetLink(ctx, int64(3000+i), account.ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *registrystore.ConflictError
		assert.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, 1, successes)

	linked, err := store.GetBotAccountByLinkedAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.NoError(t, errs[linked.PlatformID-3000], "the winner's SetLink returned success")
}

func TestSessions(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "session@example.com", nil)

	now := time.Now().UTC()
	valid := &model.Session{
		ID:          uuid.New(),
		TokenDigest: "digest-valid",
		AccountID:   account.ID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	expired := &model.Session{
		ID:          uuid.New(),
		TokenDigest: "digest-expired",
		AccountID:   account.ID,
		CreatedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}
	require.NoError(t, store.CreateSession(ctx, valid))
	require.NoError(t, store.CreateSession(ctx, expired))

	// Lookups return the row regardless of expiry; expiry is the caller's
	// check.
	got, err := store.GetSessionByDigest(ctx, "digest-expired")
	require.NoError(t, err)
	assert.Equal(t, expired.ID, got.ID)

	deleted, err := store.DeleteExpiredSessions(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetSessionByDigest(ctx, "digest-expired")
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	got, err = store.GetSessionByDigest(ctx, "digest-valid")
	require.NoError(t, err)
	assert.Equal(t, valid.ID, got.ID)
}

func TestDeleteExpiredSessionsBatchLimit(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "batch@example.com", nil)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateSession(ctx, &model.Session{
			ID:          uuid.New(),
			TokenDigest: fmt.Sprintf("stale-%d", i),
			AccountID:   account.ID,
			CreatedAt:   now.Add(-48 * time.Hour),
			ExpiresAt:   now.Add(-24 * time.Hour),
		}))
	}

	deleted, err := store.DeleteExpiredSessions(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = store.DeleteExpiredSessions(ctx, now, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestConversationLifecycle(t *testing.T) {
	store, ctx := setupTestStore(t)

	conv, err := store.CreateConversation(ctx, "user1", strPtr("First"))
	require.NoError(t, err)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "First", *conv.Title)

	second, err := store.CreateConversation(ctx, "user1", nil)
	require.NoError(t, err)
	assert.Nil(t, second.Title)

	// Scoped reads treat someone else's conversation as missing.
	_, err = store.GetConversation(ctx, "user2", conv.ID)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, store.AppendMessage(ctx, &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        "hello",
	}))

	summaries, err := store.ListConversations(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	// The conversation with the newest activity lists first.
	assert.Equal(t, conv.ID, summaries[0].ID)
	assert.Equal(t, int64(1), summaries[0].MessageCount)
	assert.Equal(t, int64(0), summaries[1].MessageCount)

	require.NoError(t, store.RenameConversation(ctx, "user1", conv.ID, "Renamed"))
	got, err := store.GetConversation(ctx, "user1", conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Renamed", *got.Title)

	err = store.RenameConversation(ctx, "user2", conv.ID, "Hijacked")
	assert.ErrorAs(t, err, &notFound)

	// The generated title only fills an empty slot.
	require.NoError(t, store.SetConversationTitleIfEmpty(ctx, conv.ID, "Generated"))
	got, err = store.GetConversation(ctx, "user1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", *got.Title)

	require.NoError(t, store.SetConversationTitleIfEmpty(ctx, second.ID, "Generated"))
	got, err = store.GetConversation(ctx, "user1", second.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Generated", *got.Title)

	err = store.DeleteConversation(ctx, "user2", conv.ID)
	assert.ErrorAs(t, err, &notFound)

	require.NoError(t, store.DeleteConversation(ctx, "user1", conv.ID))
	_, err = store.GetConversation(ctx, "user1", conv.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestAppendAndListMessages(t *testing.T) {
	store, ctx := setupTestStore(t)

	conv, err := store.CreateConversation(ctx, "user1", nil)
	require.NoError(t, err)

	first := &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "question"}
	require.NoError(t, store.AppendMessage(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	second := &model.Message{ConversationID: conv.ID, Role: model.RoleAssistant, Content: "answer"}
	require.NoError(t, store.AppendMessage(ctx, second))

	messages, err := store.ListMessages(ctx, "user1", conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, model.RoleAssistant, messages[1].Role)

	_, err = store.ListMessages(ctx, "user2", conv.ID)
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	byIDs, err := store.GetMessagesByIDs(ctx, []uuid.UUID{second.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
	assert.Equal(t, "answer", byIDs[0].Content)
}

func TestMessageIndexingQueue(t *testing.T) {
	store, ctx := setupTestStore(t)

	conv, err := store.CreateConversation(ctx, "user1", nil)
	require.NoError(t, err)

	message := &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "index me"}
	require.NoError(t, store.AppendMessage(ctx, message))

	pending, err := store.FindMessagesPendingVectorIndexing(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, message.ID, pending[0].ID)

	require.NoError(t, store.SetMessageIndexedAt(ctx, message.ID, time.Now()))

	pending, err = store.FindMessagesPendingVectorIndexing(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFetchSearchResultDetails(t *testing.T) {
	store, ctx := setupTestStore(t)

	mine, err := store.CreateConversation(ctx, "user1", strPtr("Mine"))
	require.NoError(t, err)
	theirs, err := store.CreateConversation(ctx, "user2", strPtr("Theirs"))
	require.NoError(t, err)

	m1 := &model.Message{ConversationID: mine.ID, Role: model.RoleUser, Content: "first hit"}
	m2 := &model.Message{ConversationID: mine.ID, Role: model.RoleAssistant, Content: "second hit"}
	foreign := &model.Message{ConversationID: theirs.ID, Role: model.RoleUser, Content: "not yours"}
	require.NoError(t, store.AppendMessage(ctx, m1))
	require.NoError(t, store.AppendMessage(ctx, m2))
	require.NoError(t, store.AppendMessage(ctx, foreign))

	// Caller order wins, and rows the owner cannot see are dropped.
	results, err := store.FetchSearchResultDetails(ctx, "user1", []uuid.UUID{m2.ID, foreign.ID, m1.ID})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, m2.ID, results[0].MessageID)
	assert.Equal(t, m1.ID, results[1].MessageID)
	assert.Equal(t, "second hit", results[0].Snippet)
	require.NotNil(t, results[0].ConversationTitle)
	assert.Equal(t, "Mine", *results[0].ConversationTitle)

	ids, err := store.ListConversationIDs(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{mine.ID}, ids)
}

func TestConversationContextMerge(t *testing.T) {
	store, ctx := setupTestStore(t)

	conv, err := store.CreateConversation(ctx, "user1", nil)
	require.NoError(t, err)

	got, err := store.GetConversationContext(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	require.NoError(t, store.SaveConversationContext(ctx, conv.ID, model.AdvisoryContext{
		UserRole:      strPtr("founder"),
		BusinessStage: strPtr("early"),
	}))

	// A later partial save keeps the earlier fields.
	require.NoError(t, store.SaveConversationContext(ctx, conv.ID, model.AdvisoryContext{
		Region: strPtr("EU"),
	}))

	got, err = store.GetConversationContext(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserRole)
	assert.Equal(t, "founder", *got.UserRole)
	require.NotNil(t, got.BusinessStage)
	assert.Equal(t, "early", *got.BusinessStage)
	require.NotNil(t, got.Region)
	assert.Equal(t, "EU", *got.Region)
	assert.Nil(t, got.Goal)
}

func TestAccountBaseContext(t *testing.T) {
	store, ctx := setupTestStore(t)

	account := createTestAccount(t, store, ctx, "ctx@example.com", nil)
	_, err := store.UpdateAccountProfile(ctx, account.ID, registrystore.ProfileUpdate{
		UserRole:      strPtr("owner"),
		BusinessNiche: strPtr("coffee"),
	})
	require.NoError(t, err)

	base, err := store.GetAccountBaseContext(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, base.UserRole)
	assert.Equal(t, "owner", *base.UserRole)
	require.NotNil(t, base.BusinessNiche)
	assert.Equal(t, "coffee", *base.BusinessNiche)
	assert.Nil(t, base.Goal, "goal is conversation-scoped only")
}

func TestTrendsLocaleOverlay(t *testing.T) {
	store, ctx := setupTestStore(t)

	reports, err := store.ListTrendReports(ctx, "en")
	require.NoError(t, err)
	require.NotEmpty(t, reports)
	// Seeded rows order by percent change, best first.
	assert.Equal(t, "ai-automation", reports[0].Name)
	assert.Contains(t, reports[0].Description, "AI assistants")

	localized, err := store.ListTrendReports(ctx, "ru")
	require.NoError(t, err)
	require.NotEmpty(t, localized)
	assert.Equal(t, "ai-automation", localized[0].Name)
	assert.Contains(t, localized[0].Description, "ИИ")

	// Unknown locales fall back to the base text.
	fallback, err := store.ListTrendReports(ctx, "fr")
	require.NoError(t, err)
	assert.Equal(t, reports[0].Description, fallback[0].Description)

	trends, err := store.ListPopularityTrends(ctx, "en")
	require.NoError(t, err)
	require.NotEmpty(t, trends)
	assert.Equal(t, model.TrendGrowing, trends[0].Direction)
	assert.Equal(t, model.TrendDecreasing, trends[len(trends)-1].Direction)
}

func TestUpsertTrendReport(t *testing.T) {
	store, ctx := setupTestStore(t)

	err := store.UpsertTrendReport(ctx, "en", registrystore.TrendReportUpsert{
		Name:          "qr-menus",
		PercentChange: f64Ptr(22.5),
		Description:   strPtr("Cafes replace printed menus with QR codes."),
		WhyPopular:    strPtr("No reprint costs and instant price updates."),
	})
	require.NoError(t, err)

	// A fresh upsert gets the newest updated_at and becomes the top trend.
	top, err := store.GetTopTrendReport(ctx, "en")
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "qr-menus", top.Name)
	assert.Equal(t, 22.5, top.PercentChange)
	assert.Contains(t, top.Description, "QR codes")

	// A locale overlay changes localized reads but not the base text.
	err = store.UpsertTrendReport(ctx, "ru", registrystore.TrendReportUpsert{
		Name:        "qr-menus",
		Description: strPtr("Кафе заменяют печатные меню QR-кодами."),
		WhyPopular:  strPtr("Нет затрат на перепечатку."),
	})
	require.NoError(t, err)

	localized, err := store.GetTopTrendReport(ctx, "ru")
	require.NoError(t, err)
	require.NotNil(t, localized)
	assert.Equal(t, "qr-menus", localized.Name)
	assert.Contains(t, localized.Description, "QR-кодами")
	// Percent change was omitted, so the stored value survives.
	assert.Equal(t, 22.5, localized.PercentChange)

	base, err := store.GetTopTrendReport(ctx, "en")
	require.NoError(t, err)
	assert.Contains(t, base.Description, "QR codes")

	// Touching another name promotes it to top.
	err = store.UpsertTrendReport(ctx, "en", registrystore.TrendReportUpsert{
		Name:          "dark-kitchens",
		PercentChange: f64Ptr(3.1),
	})
	require.NoError(t, err)

	top, err = store.GetTopTrendReport(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, "dark-kitchens", top.Name)

	// Blank names are rejected before touching the database.
	err = store.UpsertTrendReport(ctx, "en", registrystore.TrendReportUpsert{Name: "   "})
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "name", validation.Field)
}

func TestUpsertPopularityTrend(t *testing.T) {
	store, ctx := setupTestStore(t)

	err := store.UpsertPopularityTrend(ctx, "en", registrystore.PopularityTrendUpsert{
		Name:          "pet-grooming",
		Direction:     model.TrendGrowing,
		PercentChange: f64Ptr(7.7),
		Notes:         strPtr("Urban pet ownership keeps climbing."),
	})
	require.NoError(t, err)

	find := func(trends []model.PopularityTrend, name string) *model.PopularityTrend {
		for i := range trends {
			if trends[i].Name == name {
				return &trends[i]
			}
		}
		return nil
	}

	trends, err := store.ListPopularityTrends(ctx, "en")
	require.NoError(t, err)
	row := find(trends, "pet-grooming")
	require.NotNil(t, row)
	assert.Equal(t, model.TrendGrowing, row.Direction)
	assert.Equal(t, 7.7, row.PercentChange)

	// Direction always overwrites; omitted fields keep their values.
	err = store.UpsertPopularityTrend(ctx, "en", registrystore.PopularityTrendUpsert{
		Name:      "pet-grooming",
		Direction: model.TrendDecreasing,
	})
	require.NoError(t, err)

	trends, err = store.ListPopularityTrends(ctx, "en")
	require.NoError(t, err)
	row = find(trends, "pet-grooming")
	require.NotNil(t, row)
	assert.Equal(t, model.TrendDecreasing, row.Direction)
	assert.Equal(t, 7.7, row.PercentChange)
	assert.Contains(t, row.Notes, "pet ownership")

	// Locale overlay for notes.
	err = store.UpsertPopularityTrend(ctx, "ru", registrystore.PopularityTrendUpsert{
		Name:      "pet-grooming",
		Direction: model.TrendDecreasing,
		Notes:     strPtr("Городское владение питомцами продолжает расти."),
	})
	require.NoError(t, err)

	localized, err := store.ListPopularityTrends(ctx, "ru")
	require.NoError(t, err)
	row = find(localized, "pet-grooming")
	require.NotNil(t, row)
	assert.Contains(t, row.Notes, "питомцами")

	trends, err = store.ListPopularityTrends(ctx, "en")
	require.NoError(t, err)
	row = find(trends, "pet-grooming")
	require.NotNil(t, row)
	assert.Contains(t, row.Notes, "pet ownership")

	// Missing name and unknown directions fail validation.
	var validation *registrystore.ValidationError
	err = store.UpsertPopularityTrend(ctx, "en", registrystore.PopularityTrendUpsert{Direction: model.TrendGrowing})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "name", validation.Field)

	err = store.UpsertPopularityTrend(ctx, "en", registrystore.PopularityTrendUpsert{Name: "pet-grooming", Direction: "sideways"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "direction", validation.Field)
}

func TestFiles(t *testing.T) {
	store, ctx := setupTestStore(t)

	file := &model.StoredFile{
		OwnerID:     strPtr("user1"),
		Filename:    "report.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Size:        1234,
		SHA256:      "abc123",
		StorageKey:  "files/report.xlsx",
	}
	require.NoError(t, store.CreateFile(ctx, file))
	assert.NotEqual(t, uuid.Nil, file.ID)

	got, err := store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.xlsx", got.Filename)

	require.NoError(t, store.DeleteFile(ctx, file.ID))

	_, err = store.GetFile(ctx, file.ID)
	var notFound *registrystore.NotFoundError
	require.True(t, errors.As(err, &notFound))
	err = store.DeleteFile(ctx, file.ID)
	assert.True(t, errors.As(err, &notFound))
}

func TestListFilesByMessage(t *testing.T) {
	store, ctx := setupTestStore(t)

	conv, err := store.CreateConversation(ctx, "user1", nil)
	require.NoError(t, err)
	reply := &model.Message{ConversationID: conv.ID, Role: model.RoleAssistant, Content: "here is your report"}
	require.NoError(t, store.AppendMessage(ctx, reply))
	other := &model.Message{ConversationID: conv.ID, Role: model.RoleAssistant, Content: "no attachments here"}
	require.NoError(t, store.AppendMessage(ctx, other))

	attached := &model.StoredFile{
		OwnerID:     strPtr("user1"),
		MessageID:   &reply.ID,
		Filename:    "sales.csv",
		ContentType: "text/csv",
		Size:        64,
		SHA256:      "deadbeef",
		StorageKey:  "files/sales.csv",
	}
	require.NoError(t, store.CreateFile(ctx, attached))
	orphan := &model.StoredFile{
		OwnerID:     strPtr("user1"),
		Filename:    "avatar.png",
		ContentType: "image/png",
		Size:        128,
		SHA256:      "cafef00d",
		StorageKey:  "files/avatar.png",
	}
	require.NoError(t, store.CreateFile(ctx, orphan))

	files, err := store.ListFilesByMessageIDs(ctx, []uuid.UUID{reply.ID, other.ID})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, attached.ID, files[0].ID)
	require.NotNil(t, files[0].MessageID)
	assert.Equal(t, reply.ID, *files[0].MessageID)

	files, err = store.ListFilesByMessageIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestTaskQueue(t *testing.T) {
	store, ctx := setupTestStore(t)

	conversationID := uuid.New().String()
	require.NoError(t, store.CreateTask(ctx, "vector_store_delete", map[string]interface{}{
		"conversationId": conversationID,
	}))

	tasks, err := store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "vector_store_delete", task.TaskType)
	assert.Equal(t, conversationID, task.TaskBody["conversationId"])
	assert.Equal(t, 0, task.RetryCount)

	// Claiming pushes retry_at forward, so a second claim sees nothing.
	tasks, err = store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// A zero retry delay makes the failed task immediately claimable again.
	require.NoError(t, store.FailTask(ctx, task.ID, "qdrant unreachable", 0))
	tasks, err = store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].RetryCount)
	require.NotNil(t, tasks[0].LastError)
	assert.Equal(t, "qdrant unreachable", *tasks[0].LastError)

	require.NoError(t, store.DeleteTask(ctx, task.ID))
	require.NoError(t, store.FailTask(ctx, task.ID, "gone", 0))
	tasks, err = store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskQueueNamedTaskDeduplicates(t *testing.T) {
	store, ctx := setupTestStore(t)

	body := map[string]interface{}{
		"taskName":       "vector_store_delete:abc",
		"conversationId": uuid.New().String(),
	}
	require.NoError(t, store.CreateTask(ctx, "vector_store_delete", body))
	// Re-enqueueing the same named task is a no-op, not an error.
	require.NoError(t, store.CreateTask(ctx, "vector_store_delete", body))

	tasks, err := store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].TaskName)
	assert.Equal(t, "vector_store_delete:abc", *tasks[0].TaskName)
}
