package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/consulta/advisor-service/internal/model"
	"github.com/google/uuid"
)

// CreateAccountRequest is the input for registering a native account.
// Handle is stored exactly as entered; NormalizedHandle is the matching key
// the caller derives from it (nil when the handle is absent or normalizes to
// the empty string).
type CreateAccountRequest struct {
	Email            string
	PasswordHash     string
	BusinessType     string
	FullName         *string
	Nickname         *string
	Phone            *string
	Country          *string
	Gender           *string
	Handle           *string
	NormalizedHandle *string
}

// ProfileUpdate defines mutable account profile fields. Nil fields keep the
// stored value. Handle pointing at the empty string clears the handle (and
// its normalized form).
type ProfileUpdate struct {
	FullName         *string
	Nickname         *string
	Phone            *string
	Country          *string
	Gender           *string
	Handle           *string
	NormalizedHandle *string
	UserRole         *string
	BusinessStage    *string
	BusinessNiche    *string
	Region           *string
}

// BotAccountUpsert is the per-interaction upsert for a bot-platform account.
// PlatformID is the conflict key; the remaining fields always overwrite the
// stored values so the row mirrors what the platform last reported.
type BotAccountUpsert struct {
	PlatformID       int64
	Handle           *string
	NormalizedHandle *string
	FirstName        *string
	LastName         *string
}

// TrendReportUpsert is the curator input for one market-trend row. Nil
// fields keep the stored values; Description and WhyPopular also write the
// locale overlay row for the caller's locale.
type TrendReportUpsert struct {
	Name          string
	PercentChange *float64
	Description   *string
	WhyPopular    *string
}

// PopularityTrendUpsert is the curator input for one niche-popularity row.
// Direction always overwrites; nil PercentChange and Notes keep the stored
// values, and Notes also writes the locale overlay row.
type PopularityTrendUpsert struct {
	Name          string
	Direction     model.TrendDirection
	PercentChange *float64
	Notes         *string
}

// ConversationSummary is a lightweight conversation representation for lists.
type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        *string   `json:"title,omitempty"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SearchResult represents a single semantic search hit.
type SearchResult struct {
	MessageID         uuid.UUID `json:"message_id"`
	ConversationID    uuid.UUID `json:"conversation_id"`
	ConversationTitle *string   `json:"conversation_title,omitempty"`
	Role              string    `json:"role"`
	Snippet           string    `json:"snippet"`
	Score             float64   `json:"score"`
	CreatedAt         time.Time `json:"created_at"`
}

// AdvisorStore defines the primary data access interface for the advisor
// service. Conversation and message operations scoped by ownerID treat a
// conversation owned by someone else the same as a missing one.
type AdvisorStore interface {
	// Accounts
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*model.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	FindAccountsByNormalizedHandle(ctx context.Context, normalized string) ([]model.Account, error)
	UpdateAccountProfile(ctx context.Context, accountID uuid.UUID, update ProfileUpdate) (*model.Account, error)
	// SetAccountProfilePicture swaps the account's profile picture file and
	// returns the previous file ID, if any, so the caller can delete the blob.
	SetAccountProfilePicture(ctx context.Context, accountID uuid.UUID, fileID *uuid.UUID) (*uuid.UUID, error)

	// Bot accounts
	UpsertBotAccount(ctx context.Context, req BotAccountUpsert) (*model.BotAccount, error)
	GetBotAccount(ctx context.Context, platformID int64) (*model.BotAccount, error)
	GetBotAccountByLinkedAccount(ctx context.Context, accountID uuid.UUID) (*model.BotAccount, error)
	FindBotAccountsByNormalizedHandle(ctx context.Context, normalized string) ([]model.BotAccount, error)
	// SetLink links the bot account to the native account. Re-asserting an
	// existing identical link is a no-op; any other occupied state on either
	// side fails with ConflictError. Under concurrent attempts exactly one
	// caller wins.
	SetLink(ctx context.Context, platformID int64, accountID uuid.UUID) error

	// Sessions
	CreateSession(ctx context.Context, session *model.Session) error
	// GetSessionByDigest returns the session row whether or not it has
	// expired; expiry is the caller's check so lookups stay cacheable.
	GetSessionByDigest(ctx context.Context, digest string) (*model.Session, error)
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	// Conversations
	CreateConversation(ctx context.Context, ownerID string, title *string) (*model.Conversation, error)
	GetConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) (*model.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]ConversationSummary, error)
	RenameConversation(ctx context.Context, ownerID string, conversationID uuid.UUID, title string) error
	// SetConversationTitleIfEmpty sets the title only when none is present;
	// used for titles extracted from the first assistant reply.
	SetConversationTitleIfEmpty(ctx context.Context, conversationID uuid.UUID, title string) error
	DeleteConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) error

	// Messages
	AppendMessage(ctx context.Context, message *model.Message) error
	ListMessages(ctx context.Context, ownerID string, conversationID uuid.UUID) ([]model.Message, error)
	GetMessagesByIDs(ctx context.Context, messageIDs []uuid.UUID) ([]model.Message, error)

	// Indexing
	FindMessagesPendingVectorIndexing(ctx context.Context, limit int) ([]model.Message, error)
	SetMessageIndexedAt(ctx context.Context, messageID uuid.UUID, indexedAt time.Time) error

	// Search
	ListConversationIDs(ctx context.Context, ownerID string) ([]uuid.UUID, error)
	FetchSearchResultDetails(ctx context.Context, ownerID string, messageIDs []uuid.UUID) ([]SearchResult, error)

	// Advisory context
	GetAccountBaseContext(ctx context.Context, accountID uuid.UUID) (model.AdvisoryContext, error)
	// GetConversationContext returns the zero value when nothing was saved.
	GetConversationContext(ctx context.Context, conversationID uuid.UUID) (model.AdvisoryContext, error)
	// SaveConversationContext merges non-nil fields into the stored row,
	// keeping previously saved fields that the update leaves out.
	SaveConversationContext(ctx context.Context, conversationID uuid.UUID, fields model.AdvisoryContext) error

	// Analytics
	// GetTopTrendReport returns the most recently updated trend row with the
	// locale overlay folded in, or nil when the table is empty.
	GetTopTrendReport(ctx context.Context, locale string) (*model.TrendReport, error)
	ListTrendReports(ctx context.Context, locale string) ([]model.TrendReport, error)
	UpsertTrendReport(ctx context.Context, locale string, req TrendReportUpsert) error
	ListPopularityTrends(ctx context.Context, locale string) ([]model.PopularityTrend, error)
	UpsertPopularityTrend(ctx context.Context, locale string, req PopularityTrendUpsert) error

	// Files
	CreateFile(ctx context.Context, file *model.StoredFile) error
	GetFile(ctx context.Context, fileID uuid.UUID) (*model.StoredFile, error)
	// ListFilesByMessageIDs returns the generated files attached to any of the
	// given messages, oldest first. Used to decorate conversation history.
	ListFilesByMessageIDs(ctx context.Context, messageIDs []uuid.UUID) ([]model.StoredFile, error)
	DeleteFile(ctx context.Context, fileID uuid.UUID) error

	// Task queue
	CreateTask(ctx context.Context, taskType string, taskBody map[string]interface{}) error
	// ClaimReadyTasks atomically claims up to limit ready tasks by pushing
	// their retry_at forward; a crashed worker's claims lapse back into the
	// queue. Uses SKIP LOCKED so concurrent workers never block each other.
	ClaimReadyTasks(ctx context.Context, limit int) ([]model.Task, error)
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error
	DeleteTask(ctx context.Context, taskID uuid.UUID) error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Loader creates an AdvisorStore from config.
type Loader func(ctx context.Context) (AdvisorStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var byName = map[string]Plugin{}

// Register adds a store plugin. Duplicate names panic.
func Register(p Plugin) {
	if _, taken := byName[p.Name]; taken {
		panic("store plugin " + p.Name + " registered twice")
	}
	byName[p.Name] = p
}

// Names lists the registered store plugins in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("no %q store plugin (have: %s)", name, strings.Join(Names(), ", "))
	}
	return p.Loader, nil
}
