package metrics

import (
	"context"
	"time"

	"github.com/consulta/advisor-service/internal/model"
	"github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/security"
	"github.com/google/uuid"
)

// Wrap returns an AdvisorStore that records StoreLatency for every operation.
func Wrap(inner store.AdvisorStore) store.AdvisorStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.AdvisorStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) CreateAccount(ctx context.Context, req store.CreateAccountRequest) (*model.Account, error) {
	defer observe("create_account", time.Now())
	return m.inner.CreateAccount(ctx, req)
}

func (m *metricsStore) GetAccount(ctx context.Context, accountID uuid.UUID) (*model.Account, error) {
	defer observe("get_account", time.Now())
	return m.inner.GetAccount(ctx, accountID)
}

func (m *metricsStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	defer observe("get_account_by_email", time.Now())
	return m.inner.GetAccountByEmail(ctx, email)
}

func (m *metricsStore) FindAccountsByNormalizedHandle(ctx context.Context, normalized string) ([]model.Account, error) {
	defer observe("find_accounts_by_handle", time.Now())
	return m.inner.FindAccountsByNormalizedHandle(ctx, normalized)
}

func (m *metricsStore) UpdateAccountProfile(ctx context.Context, accountID uuid.UUID, update store.ProfileUpdate) (*model.Account, error) {
	defer observe("update_account_profile", time.Now())
	return m.inner.UpdateAccountProfile(ctx, accountID, update)
}

func (m *metricsStore) SetAccountProfilePicture(ctx context.Context, accountID uuid.UUID, fileID *uuid.UUID) (*uuid.UUID, error) {
	defer observe("set_account_profile_picture", time.Now())
	return m.inner.SetAccountProfilePicture(ctx, accountID, fileID)
}

func (m *metricsStore) UpsertBotAccount(ctx context.Context, req store.BotAccountUpsert) (*model.BotAccount, error) {
	defer observe("upsert_bot_account", time.Now())
	return m.inner.UpsertBotAccount(ctx, req)
}

func (m *metricsStore) GetBotAccount(ctx context.Context, platformID int64) (*model.BotAccount, error) {
	defer observe("get_bot_account", time.Now())
	return m.inner.GetBotAccount(ctx, platformID)
}

func (m *metricsStore) GetBotAccountByLinkedAccount(ctx context.Context, accountID uuid.UUID) (*model.BotAccount, error) {
	defer observe("get_bot_account_by_link", time.Now())
	return m.inner.GetBotAccountByLinkedAccount(ctx, accountID)
}

func (m *metricsStore) FindBotAccountsByNormalizedHandle(ctx context.Context, normalized string) ([]model.BotAccount, error) {
	defer observe("find_bot_accounts_by_handle", time.Now())
	return m.inner.FindBotAccountsByNormalizedHandle(ctx, normalized)
}

func (m *metricsStore) SetLink(ctx context.Context, platformID int64, accountID uuid.UUID) error {
	defer observe("set_link", time.Now())
	return m.inner.SetLink(ctx, platformID, accountID)
}

func (m *metricsStore) CreateSession(ctx context.Context, session *model.Session) error {
	defer observe("create_session", time.Now())
	return m.inner.CreateSession(ctx, session)
}

func (m *metricsStore) GetSessionByDigest(ctx context.Context, digest string) (*model.Session, error) {
	defer observe("get_session_by_digest", time.Now())
	return m.inner.GetSessionByDigest(ctx, digest)
}

func (m *metricsStore) DeleteExpiredSessions(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	defer observe("delete_expired_sessions", time.Now())
	return m.inner.DeleteExpiredSessions(ctx, cutoff, limit)
}

func (m *metricsStore) CreateConversation(ctx context.Context, ownerID string, title *string) (*model.Conversation, error) {
	defer observe("create_conversation", time.Now())
	return m.inner.CreateConversation(ctx, ownerID, title)
}

func (m *metricsStore) GetConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, ownerID, conversationID)
}

func (m *metricsStore) ListConversations(ctx context.Context, ownerID string) ([]store.ConversationSummary, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, ownerID)
}

func (m *metricsStore) RenameConversation(ctx context.Context, ownerID string, conversationID uuid.UUID, title string) error {
	defer observe("rename_conversation", time.Now())
	return m.inner.RenameConversation(ctx, ownerID, conversationID, title)
}

func (m *metricsStore) SetConversationTitleIfEmpty(ctx context.Context, conversationID uuid.UUID, title string) error {
	defer observe("set_conversation_title", time.Now())
	return m.inner.SetConversationTitleIfEmpty(ctx, conversationID, title)
}

func (m *metricsStore) DeleteConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) error {
	defer observe("delete_conversation", time.Now())
	return m.inner.DeleteConversation(ctx, ownerID, conversationID)
}

func (m *metricsStore) AppendMessage(ctx context.Context, message *model.Message) error {
	defer observe("append_message", time.Now())
	return m.inner.AppendMessage(ctx, message)
}

func (m *metricsStore) ListMessages(ctx context.Context, ownerID string, conversationID uuid.UUID) ([]model.Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, ownerID, conversationID)
}

func (m *metricsStore) GetMessagesByIDs(ctx context.Context, messageIDs []uuid.UUID) ([]model.Message, error) {
	defer observe("get_messages_by_ids", time.Now())
	return m.inner.GetMessagesByIDs(ctx, messageIDs)
}

func (m *metricsStore) FindMessagesPendingVectorIndexing(ctx context.Context, limit int) ([]model.Message, error) {
	defer observe("find_messages_pending_indexing", time.Now())
	return m.inner.FindMessagesPendingVectorIndexing(ctx, limit)
}

func (m *metricsStore) SetMessageIndexedAt(ctx context.Context, messageID uuid.UUID, indexedAt time.Time) error {
	defer observe("set_message_indexed_at", time.Now())
	return m.inner.SetMessageIndexedAt(ctx, messageID, indexedAt)
}

func (m *metricsStore) ListConversationIDs(ctx context.Context, ownerID string) ([]uuid.UUID, error) {
	defer observe("list_conversation_ids", time.Now())
	return m.inner.ListConversationIDs(ctx, ownerID)
}

func (m *metricsStore) FetchSearchResultDetails(ctx context.Context, ownerID string, messageIDs []uuid.UUID) ([]store.SearchResult, error) {
	defer observe("fetch_search_result_details", time.Now())
	return m.inner.FetchSearchResultDetails(ctx, ownerID, messageIDs)
}

func (m *metricsStore) GetAccountBaseContext(ctx context.Context, accountID uuid.UUID) (model.AdvisoryContext, error) {
	defer observe("get_account_base_context", time.Now())
	return m.inner.GetAccountBaseContext(ctx, accountID)
}

func (m *metricsStore) GetConversationContext(ctx context.Context, conversationID uuid.UUID) (model.AdvisoryContext, error) {
	defer observe("get_conversation_context", time.Now())
	return m.inner.GetConversationContext(ctx, conversationID)
}

func (m *metricsStore) SaveConversationContext(ctx context.Context, conversationID uuid.UUID, fields model.AdvisoryContext) error {
	defer observe("save_conversation_context", time.Now())
	return m.inner.SaveConversationContext(ctx, conversationID, fields)
}

func (m *metricsStore) GetTopTrendReport(ctx context.Context, locale string) (*model.TrendReport, error) {
	defer observe("get_top_trend_report", time.Now())
	return m.inner.GetTopTrendReport(ctx, locale)
}

func (m *metricsStore) ListTrendReports(ctx context.Context, locale string) ([]model.TrendReport, error) {
	defer observe("list_trend_reports", time.Now())
	return m.inner.ListTrendReports(ctx, locale)
}

func (m *metricsStore) UpsertTrendReport(ctx context.Context, locale string, req store.TrendReportUpsert) error {
	defer observe("upsert_trend_report", time.Now())
	return m.inner.UpsertTrendReport(ctx, locale, req)
}

func (m *metricsStore) ListPopularityTrends(ctx context.Context, locale string) ([]model.PopularityTrend, error) {
	defer observe("list_popularity_trends", time.Now())
	return m.inner.ListPopularityTrends(ctx, locale)
}

func (m *metricsStore) UpsertPopularityTrend(ctx context.Context, locale string, req store.PopularityTrendUpsert) error {
	defer observe("upsert_popularity_trend", time.Now())
	return m.inner.UpsertPopularityTrend(ctx, locale, req)
}

func (m *metricsStore) CreateFile(ctx context.Context, file *model.StoredFile) error {
	defer observe("create_file", time.Now())
	return m.inner.CreateFile(ctx, file)
}

func (m *metricsStore) GetFile(ctx context.Context, fileID uuid.UUID) (*model.StoredFile, error) {
	defer observe("get_file", time.Now())
	return m.inner.GetFile(ctx, fileID)
}

func (m *metricsStore) ListFilesByMessageIDs(ctx context.Context, messageIDs []uuid.UUID) ([]model.StoredFile, error) {
	defer observe("list_files_by_message", time.Now())
	return m.inner.ListFilesByMessageIDs(ctx, messageIDs)
}

func (m *metricsStore) DeleteFile(ctx context.Context, fileID uuid.UUID) error {
	defer observe("delete_file", time.Now())
	return m.inner.DeleteFile(ctx, fileID)
}

func (m *metricsStore) CreateTask(ctx context.Context, taskType string, taskBody map[string]interface{}) error {
	defer observe("create_task", time.Now())
	return m.inner.CreateTask(ctx, taskType, taskBody)
}

func (m *metricsStore) ClaimReadyTasks(ctx context.Context, limit int) ([]model.Task, error) {
	defer observe("claim_ready_tasks", time.Now())
	return m.inner.ClaimReadyTasks(ctx, limit)
}

func (m *metricsStore) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error {
	defer observe("fail_task", time.Now())
	return m.inner.FailTask(ctx, taskID, errMsg, retryDelay)
}

func (m *metricsStore) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	defer observe("delete_task", time.Now())
	return m.inner.DeleteTask(ctx, taskID)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
