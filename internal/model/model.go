package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author side of a chat turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// TrendDirection describes where a popularity trend is heading.
type TrendDirection string

const (
	TrendGrowing    TrendDirection = "growing"
	TrendDecreasing TrendDirection = "decreasing"
)

// Account is a native account registered with email and password.
// Handle is stored exactly as the user entered it; NormalizedHandle is the
// lowercased, @-stripped form used for matching against bot accounts.
type Account struct {
	ID               uuid.UUID  `json:"id"                           gorm:"primaryKey;type:uuid"`
	Email            string     `json:"email"                        gorm:"uniqueIndex;not null"`
	PasswordHash     string     `json:"-"                            gorm:"not null"`
	BusinessType     string     `json:"business_type"                gorm:"not null"`
	FullName         *string    `json:"full_name,omitempty"`
	Nickname         *string    `json:"nickname,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	Country          *string    `json:"country,omitempty"`
	Gender           *string    `json:"gender,omitempty"`
	Handle           *string    `json:"handle,omitempty"`
	NormalizedHandle *string    `json:"-"                            gorm:"index"`
	ProfilePictureID *uuid.UUID `json:"profile_picture_id,omitempty" gorm:"type:uuid"`
	UserRole         *string    `json:"user_role,omitempty"`
	BusinessStage    *string    `json:"business_stage,omitempty"`
	BusinessNiche    *string    `json:"business_niche,omitempty"`
	Region           *string    `json:"region,omitempty"`
	CreatedAt        time.Time  `json:"created_at"                   gorm:"not null;default:now()"`
	UpdatedAt        time.Time  `json:"updated_at"                   gorm:"not null;default:now()"`
}

func (Account) TableName() string { return "accounts" }

// BotAccount is an account observed through the bot platform, keyed by the
// platform-assigned numeric ID. At most one bot account may link to any
// native account; the link is enforced by a partial unique index on
// linked_account_id.
type BotAccount struct {
	PlatformID       int64      `json:"platform_id"                 gorm:"primaryKey;autoIncrement:false"`
	Handle           *string    `json:"handle,omitempty"`
	NormalizedHandle *string    `json:"-"                           gorm:"index"`
	FirstName        *string    `json:"first_name,omitempty"`
	LastName         *string    `json:"last_name,omitempty"`
	LinkedAccountID  *uuid.UUID `json:"linked_account_id,omitempty" gorm:"type:uuid"`
	CreatedAt        time.Time  `json:"created_at"                  gorm:"not null;default:now()"`
	UpdatedAt        time.Time  `json:"updated_at"                  gorm:"not null;default:now()"`
}

func (BotAccount) TableName() string { return "bot_accounts" }

// Session is a bearer-token session. Only the SHA-256 digest of the issued
// token is persisted; the token itself is returned to the client exactly once.
type Session struct {
	ID          uuid.UUID `json:"id"         gorm:"primaryKey;type:uuid"`
	TokenDigest string    `json:"-"          gorm:"uniqueIndex;not null"`
	AccountID   uuid.UUID `json:"account_id" gorm:"not null;type:uuid"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:now()"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"not null;index"`
}

func (Session) TableName() string { return "sessions" }

// Conversation groups the chat history owned by one resolved identity.
// OwnerID is a native account UUID in string form, or, for unlinked bot
// accounts, the decimal form of the bot platform ID.
type Conversation struct {
	ID        uuid.UUID `json:"id"         gorm:"primaryKey;type:uuid"`
	OwnerID   string    `json:"owner_id"   gorm:"not null;index"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:now()"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is a single chat turn within a conversation. IndexedAt is set by
// the background indexer once the message has been embedded into the vector
// store.
type Message struct {
	ID             uuid.UUID   `json:"id"              gorm:"primaryKey;type:uuid"`
	ConversationID uuid.UUID   `json:"conversation_id" gorm:"not null;type:uuid;index"`
	Role           MessageRole `json:"role"            gorm:"not null"`
	Content        string      `json:"content"         gorm:"not null"`
	CreatedAt      time.Time   `json:"created_at"      gorm:"not null;default:now()"`
	IndexedAt      *time.Time  `json:"indexed_at,omitempty"`
}

func (Message) TableName() string { return "messages" }

// ConversationContext pins advisory profile fields to a single conversation.
// Saved fields override the owning account's base profile when the system
// prompt is assembled.
type ConversationContext struct {
	ConversationID uuid.UUID `json:"conversation_id" gorm:"primaryKey;type:uuid"`
	UserRole       *string   `json:"user_role,omitempty"`
	BusinessStage  *string   `json:"business_stage,omitempty"`
	BusinessNiche  *string   `json:"business_niche,omitempty"`
	Region         *string   `json:"region,omitempty"`
	Goal           *string   `json:"goal,omitempty"`
	Urgency        *string   `json:"urgency,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"      gorm:"not null;default:now()"`
}

func (ConversationContext) TableName() string { return "conversation_context" }

// AdvisoryContext is the merged set of profile fields used to build the
// system prompt. Nil pointers mean "not provided".
type AdvisoryContext struct {
	UserRole      *string `json:"user_role,omitempty"`
	BusinessStage *string `json:"business_stage,omitempty"`
	BusinessNiche *string `json:"business_niche,omitempty"`
	Region        *string `json:"region,omitempty"`
	Goal          *string `json:"goal,omitempty"`
	Urgency       *string `json:"urgency,omitempty"`
}

// IsZero reports whether no field is set.
func (c AdvisoryContext) IsZero() bool {
	return c.UserRole == nil && c.BusinessStage == nil && c.BusinessNiche == nil &&
		c.Region == nil && c.Goal == nil && c.Urgency == nil
}

// MergeAdvisoryContexts folds the layers field by field; earlier layers win.
// Callers pass request overrides first, then the conversation context, then
// the account's base profile.
func MergeAdvisoryContexts(layers ...AdvisoryContext) AdvisoryContext {
	var out AdvisoryContext
	for _, l := range layers {
		if out.UserRole == nil {
			out.UserRole = l.UserRole
		}
		if out.BusinessStage == nil {
			out.BusinessStage = l.BusinessStage
		}
		if out.BusinessNiche == nil {
			out.BusinessNiche = l.BusinessNiche
		}
		if out.Region == nil {
			out.Region = l.Region
		}
		if out.Goal == nil {
			out.Goal = l.Goal
		}
		if out.Urgency == nil {
			out.Urgency = l.Urgency
		}
	}
	return out
}

// StoredFile is file metadata; the blob bytes live with the configured file
// store plugin and are addressed by StorageKey. MessageID ties generated
// documents to the assistant message that produced them so conversation
// history can return them as attachments.
type StoredFile struct {
	ID          uuid.UUID  `json:"id"           gorm:"primaryKey;type:uuid"`
	OwnerID     *string    `json:"owner_id,omitempty"`
	MessageID   *uuid.UUID `json:"message_id,omitempty" gorm:"type:uuid;index"`
	Filename    string     `json:"filename"     gorm:"not null"`
	ContentType string     `json:"content_type" gorm:"not null"`
	Size        int64      `json:"size"         gorm:"not null"`
	SHA256      string     `json:"sha256"       gorm:"not null"`
	StorageKey  string     `json:"-"            gorm:"not null"`
	CreatedAt   time.Time  `json:"created_at"   gorm:"not null;default:now()"`
}

func (StoredFile) TableName() string { return "files" }

// Task represents a background task in the task queue. Tasks are claimed with
// FOR UPDATE SKIP LOCKED so multiple instances can drain the queue safely.
type Task struct {
	ID         uuid.UUID              `json:"id"                  gorm:"primaryKey;type:uuid"`
	TaskName   *string                `json:"taskName,omitempty"  gorm:"unique"`
	TaskType   string                 `json:"taskType"            gorm:"not null"`
	TaskBody   map[string]interface{} `json:"taskBody"            gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt  time.Time              `json:"createdAt"           gorm:"not null;default:now()"`
	RetryAt    time.Time              `json:"retryAt"             gorm:"not null;default:now()"`
	LastError  *string                `json:"lastError,omitempty"`
	RetryCount int                    `json:"retryCount"          gorm:"not null;default:0"`
}

func (Task) TableName() string { return "tasks" }

// TrendReport is one curated market-trend row. Locale overlays live in
// trend_report_i18n and are folded in at query time.
type TrendReport struct {
	Name          string    `json:"name"           gorm:"primaryKey"`
	PercentChange float64   `json:"percent_change" gorm:"not null"`
	Description   string    `json:"description"    gorm:"not null"`
	WhyPopular    string    `json:"why_popular"    gorm:"not null"`
	UpdatedAt     time.Time `json:"updated_at"     gorm:"not null;default:now()"`
}

func (TrendReport) TableName() string { return "trend_reports" }

// PopularityTrend is one curated niche-popularity row. Locale overlays live
// in popularity_trend_i18n and are folded in at query time.
type PopularityTrend struct {
	Name          string         `json:"name"           gorm:"primaryKey"`
	Direction     TrendDirection `json:"direction"      gorm:"not null"`
	PercentChange float64        `json:"percent_change" gorm:"not null"`
	Notes         string         `json:"notes"          gorm:"not null"`
	UpdatedAt     time.Time      `json:"updated_at"     gorm:"not null;default:now()"`
}

func (PopularityTrend) TableName() string { return "popularity_trends" }
