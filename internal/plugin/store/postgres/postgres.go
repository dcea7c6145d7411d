package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/model"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.AdvisorStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &PostgresStore{db: db, cfg: cfg}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "" && cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Read and execute embedded schema
	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements AdvisorStore using GORM + PostgreSQL.
type PostgresStore struct {
	db  *gorm.DB
	cfg *config.Config
}

var _ registrystore.AdvisorStore = (*PostgresStore)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, req registrystore.CreateAccountRequest) (*model.Account, error) {
	now := time.Now()
	account := model.Account{
		ID:               uuid.New(),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:     req.PasswordHash,
		BusinessType:     req.BusinessType,
		FullName:         req.FullName,
		Nickname:         req.Nickname,
		Phone:            req.Phone,
		Country:          req.Country,
		Gender:           req.Gender,
		Handle:           req.Handle,
		NormalizedHandle: req.NormalizedHandle,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &registrystore.ConflictError{Message: "email already registered", Code: "email-taken"}
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "account", ID: accountID.String()}
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	var account model.Account
	if err := s.db.WithContext(ctx).Where("email = ?", normalized).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "account", ID: normalized}
		}
		return nil, fmt.Errorf("failed to load account by email: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) FindAccountsByNormalizedHandle(ctx context.Context, normalized string) ([]model.Account, error) {
	// The empty handle never matches anything.
	if normalized == "" {
		return nil, nil
	}
	var accounts []model.Account
	if err := s.db.WithContext(ctx).Where("normalized_handle = ?", normalized).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to find accounts by handle: %w", err)
	}
	return accounts, nil
}

func (s *PostgresStore) UpdateAccountProfile(ctx context.Context, accountID uuid.UUID, update registrystore.ProfileUpdate) (*model.Account, error) {
	updates := map[string]interface{}{"updated_at": time.Now()}
	setIfPresent := func(column string, value *string) {
		if value != nil {
			updates[column] = *value
		}
	}
	setIfPresent("full_name", update.FullName)
	setIfPresent("nickname", update.Nickname)
	setIfPresent("phone", update.Phone)
	setIfPresent("country", update.Country)
	setIfPresent("gender", update.Gender)
	setIfPresent("user_role", update.UserRole)
	setIfPresent("business_stage", update.BusinessStage)
	setIfPresent("business_niche", update.BusinessNiche)
	setIfPresent("region", update.Region)
	if update.Handle != nil {
		if *update.Handle == "" {
			// An explicit empty handle clears both columns.
			updates["handle"] = nil
			updates["normalized_handle"] = nil
		} else {
			updates["handle"] = *update.Handle
			if update.NormalizedHandle != nil {
				updates["normalized_handle"] = *update.NormalizedHandle
			} else {
				updates["normalized_handle"] = nil
			}
		}
	}

	result := s.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", accountID).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &registrystore.NotFoundError{Resource: "account", ID: accountID.String()}
	}
	return s.GetAccount(ctx, accountID)
}

func (s *PostgresStore) SetAccountProfilePicture(ctx context.Context, accountID uuid.UUID, fileID *uuid.UUID) (*uuid.UUID, error) {
	var previous *uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.Account
		if err := tx.Raw(`SELECT * FROM accounts WHERE id = ? FOR UPDATE`, accountID).Scan(&account).Error; err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}
		if account.ID == uuid.Nil {
			return &registrystore.NotFoundError{Resource: "account", ID: accountID.String()}
		}
		previous = account.ProfilePictureID
		var next interface{}
		if fileID != nil {
			next = *fileID
		}
		return tx.Model(&model.Account{}).Where("id = ?", accountID).
			Updates(map[string]interface{}{"profile_picture_id": next, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// --- Bot accounts ---

func (s *PostgresStore) UpsertBotAccount(ctx context.Context, req registrystore.BotAccountUpsert) (*model.BotAccount, error) {
	now := time.Now()
	// INSERT ... ON CONFLICT so concurrent first interactions cannot race. The
	// mutable fields always take the incoming values; the row mirrors what the
	// platform last reported. The link column is never touched here.
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO bot_accounts (platform_id, handle, normalized_handle, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			normalized_handle = EXCLUDED.normalized_handle,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated_at = EXCLUDED.updated_at`,
		req.PlatformID, req.Handle, req.NormalizedHandle, req.FirstName, req.LastName, now, now,
	).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bot account: %w", err)
	}
	return s.GetBotAccount(ctx, req.PlatformID)
}

func (s *PostgresStore) GetBotAccount(ctx context.Context, platformID int64) (*model.BotAccount, error) {
	var bot model.BotAccount
	if err := s.db.WithContext(ctx).Where("platform_id = ?", platformID).First(&bot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "bot account", ID: strconv.FormatInt(platformID, 10)}
		}
		return nil, fmt.Errorf("failed to load bot account: %w", err)
	}
	return &bot, nil
}

func (s *PostgresStore) GetBotAccountByLinkedAccount(ctx context.Context, accountID uuid.UUID) (*model.BotAccount, error) {
	var bot model.BotAccount
	if err := s.db.WithContext(ctx).Where("linked_account_id = ?", accountID).First(&bot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "bot account", ID: accountID.String()}
		}
		return nil, fmt.Errorf("failed to load bot account by link: %w", err)
	}
	return &bot, nil
}

func (s *PostgresStore) FindBotAccountsByNormalizedHandle(ctx context.Context, normalized string) ([]model.BotAccount, error) {
	if normalized == "" {
		return nil, nil
	}
	var bots []model.BotAccount
	if err := s.db.WithContext(ctx).Where("normalized_handle = ?", normalized).Find(&bots).Error; err != nil {
		return nil, fmt.Errorf("failed to find bot accounts by handle: %w", err)
	}
	return bots, nil
}

func (s *PostgresStore) SetLink(ctx context.Context, platformID int64, accountID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the bot row so concurrent link attempts on the same bot account
		// serialize here.
		var bot model.BotAccount
		if err := tx.Raw(`SELECT * FROM bot_accounts WHERE platform_id = ? FOR UPDATE`, platformID).Scan(&bot).Error; err != nil {
			return fmt.Errorf("failed to lock bot account: %w", err)
		}
		if bot.PlatformID == 0 {
			return &registrystore.NotFoundError{Resource: "bot account", ID: strconv.FormatInt(platformID, 10)}
		}
		if bot.LinkedAccountID != nil {
			if *bot.LinkedAccountID == accountID {
				// Re-asserting the existing link is a no-op.
				return nil
			}
			return &registrystore.ConflictError{Message: "bot account is already linked to a different account", Code: "bot-already-linked"}
		}

		var count int64
		if err := tx.Model(&model.Account{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if count == 0 {
			return &registrystore.NotFoundError{Resource: "account", ID: accountID.String()}
		}

		err := tx.Model(&model.BotAccount{}).Where("platform_id = ?", platformID).
			Updates(map[string]interface{}{"linked_account_id": accountID, "updated_at": time.Now()}).Error
		if err != nil {
			// The partial unique index on linked_account_id rejects a second
			// bot account claiming the same native account.
			if isUniqueViolation(err) {
				return &registrystore.ConflictError{Message: "account is already linked to a different bot account", Code: "account-already-linked"}
			}
			return fmt.Errorf("failed to set link: %w", err)
		}
		return nil
	})
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, session *model.Session) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSessionByDigest(ctx context.Context, digest string) (*model.Session, error) {
	var session model.Session
	if err := s.db.WithContext(ctx).Where("token_digest = ?", digest).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "session", ID: digest}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE expires_at <= ? ORDER BY expires_at LIMIT ?
		)`, cutoff, limit)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// --- Conversations ---

func (s *PostgresStore) CreateConversation(ctx context.Context, ownerID string, title *string) (*model.Conversation, error) {
	now := time.Now()
	conversation := model.Conversation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conversation, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) (*model.Conversation, error) {
	var conversation model.Conversation
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", conversationID, ownerID).First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conversation, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, ownerID string) ([]registrystore.ConversationSummary, error) {
	var summaries []registrystore.ConversationSummary
	err := s.db.WithContext(ctx).Raw(`
		SELECT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT count(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c
		WHERE c.owner_id = ?
		ORDER BY c.updated_at DESC`, ownerID).
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summaries, nil
}

func (s *PostgresStore) RenameConversation(ctx context.Context, ownerID string, conversationID uuid.UUID, title string) error {
	result := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND owner_id = ?", conversationID, ownerID).
		Updates(map[string]interface{}{"title": title, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to rename conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	return nil
}

func (s *PostgresStore) SetConversationTitleIfEmpty(ctx context.Context, conversationID uuid.UUID, title string) error {
	err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND (title IS NULL OR title = '')", conversationID).
		Update("title", title).Error
	if err != nil {
		return fmt.Errorf("failed to set conversation title: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conversation model.Conversation
		result := tx.Where("id = ? AND owner_id = ?", conversationID, ownerID).Limit(1).Find(&conversation)
		if result.Error != nil {
			return fmt.Errorf("failed to load conversation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.ConversationContext{}).Error; err != nil {
			return fmt.Errorf("failed to delete conversation context: %w", err)
		}
		if err := tx.Where("id = ?", conversationID).Delete(&model.Conversation{}).Error; err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return nil
	})
}

// --- Messages ---

func (s *PostgresStore) AppendMessage(ctx context.Context, message *model.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		// Keep conversations ordered by last activity.
		if err := tx.Model(&model.Conversation{}).Where("id = ?", message.ConversationID).
			Update("updated_at", message.CreatedAt).Error; err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListMessages(ctx context.Context, ownerID string, conversationID uuid.UUID) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	var messages []model.Message
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) GetMessagesByIDs(ctx context.Context, messageIDs []uuid.UUID) ([]model.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var messages []model.Message
	if err := s.db.WithContext(ctx).Where("id IN ?", messageIDs).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, nil
}

// --- Indexing ---

func (s *PostgresStore) FindMessagesPendingVectorIndexing(ctx context.Context, limit int) ([]model.Message, error) {
	var messages []model.Message
	if err := s.db.WithContext(ctx).Where("indexed_at IS NULL").
		Order("created_at ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages pending indexing: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) SetMessageIndexedAt(ctx context.Context, messageID uuid.UUID, indexedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", messageID).
		Update("indexed_at", indexedAt).Error
	if err != nil {
		return fmt.Errorf("failed to mark message indexed: %w", err)
	}
	return nil
}

// --- Search ---

func (s *PostgresStore) ListConversationIDs(ctx context.Context, ownerID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("owner_id = ?", ownerID).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversation ids: %w", err)
	}
	return ids, nil
}

const snippetMaxRunes = 240

func makeSnippet(content string) string {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
	runes := []rune(content)
	if len(runes) <= snippetMaxRunes {
		return content
	}
	return string(runes[:snippetMaxRunes]) + "..."
}

func (s *PostgresStore) FetchSearchResultDetails(ctx context.Context, ownerID string, messageIDs []uuid.UUID) ([]registrystore.SearchResult, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var rows []struct {
		MessageID         uuid.UUID
		ConversationID    uuid.UUID
		ConversationTitle *string
		Role              string
		Content           string
		CreatedAt         time.Time
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT m.id AS message_id, m.conversation_id, c.title AS conversation_title,
		       m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.id IN ? AND c.owner_id = ?`, messageIDs, ownerID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search results: %w", err)
	}

	// Preserve the caller's ranking order; rows belonging to other owners or
	// deleted since indexing are silently dropped.
	byID := make(map[uuid.UUID]int, len(rows))
	for i, row := range rows {
		byID[row.MessageID] = i
	}
	results := make([]registrystore.SearchResult, 0, len(rows))
	for _, id := range messageIDs {
		i, ok := byID[id]
		if !ok {
			continue
		}
		row := rows[i]
		results = append(results, registrystore.SearchResult{
			MessageID:         row.MessageID,
			ConversationID:    row.ConversationID,
			ConversationTitle: row.ConversationTitle,
			Role:              row.Role,
			Snippet:           makeSnippet(row.Content),
			CreatedAt:         row.CreatedAt,
		})
	}
	return results, nil
}

// --- Advisory context ---

func (s *PostgresStore) GetAccountBaseContext(ctx context.Context, accountID uuid.UUID) (model.AdvisoryContext, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return model.AdvisoryContext{}, err
	}
	return model.AdvisoryContext{
		UserRole:      account.UserRole,
		BusinessStage: account.BusinessStage,
		BusinessNiche: account.BusinessNiche,
		Region:        account.Region,
	}, nil
}

func (s *PostgresStore) GetConversationContext(ctx context.Context, conversationID uuid.UUID) (model.AdvisoryContext, error) {
	var row model.ConversationContext
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.AdvisoryContext{}, nil
	}
	if err != nil {
		return model.AdvisoryContext{}, fmt.Errorf("failed to load conversation context: %w", err)
	}
	return model.AdvisoryContext{
		UserRole:      row.UserRole,
		BusinessStage: row.BusinessStage,
		BusinessNiche: row.BusinessNiche,
		Region:        row.Region,
		Goal:          row.Goal,
		Urgency:       row.Urgency,
	}, nil
}

func (s *PostgresStore) SaveConversationContext(ctx context.Context, conversationID uuid.UUID, fields model.AdvisoryContext) error {
	// Per-field COALESCE keeps previously saved values that this update
	// leaves out.
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO conversation_context (conversation_id, user_role, business_stage, business_niche, region, goal, urgency, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, now())
		ON CONFLICT (conversation_id) DO UPDATE SET
			user_role = COALESCE(EXCLUDED.user_role, conversation_context.user_role),
			business_stage = COALESCE(EXCLUDED.business_stage, conversation_context.business_stage),
			business_niche = COALESCE(EXCLUDED.business_niche, conversation_context.business_niche),
			region = COALESCE(EXCLUDED.region, conversation_context.region),
			goal = COALESCE(EXCLUDED.goal, conversation_context.goal),
			urgency = COALESCE(EXCLUDED.urgency, conversation_context.urgency),
			updated_at = now()`,
		conversationID, fields.UserRole, fields.BusinessStage, fields.BusinessNiche,
		fields.Region, fields.Goal, fields.Urgency,
	).Error
	if err != nil {
		return fmt.Errorf("failed to save conversation context: %w", err)
	}
	return nil
}

// --- Analytics ---

func (s *PostgresStore) GetTopTrendReport(ctx context.Context, locale string) (*model.TrendReport, error) {
	var report model.TrendReport
	result := s.db.WithContext(ctx).Raw(`
		SELECT t.name,
		       t.percent_change,
		       COALESCE(i.description, t.description) AS description,
		       COALESCE(i.why_popular, t.why_popular) AS why_popular,
		       t.updated_at
		FROM trend_reports t
		LEFT JOIN trend_report_i18n i ON i.name = t.name AND i.locale = ?
		ORDER BY t.updated_at DESC
		LIMIT 1`, locale).
		Scan(&report)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load top trend report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &report, nil
}

func (s *PostgresStore) ListTrendReports(ctx context.Context, locale string) ([]model.TrendReport, error) {
	var reports []model.TrendReport
	err := s.db.WithContext(ctx).Raw(`
		SELECT t.name,
		       t.percent_change,
		       COALESCE(i.description, t.description) AS description,
		       COALESCE(i.why_popular, t.why_popular) AS why_popular,
		       t.updated_at
		FROM trend_reports t
		LEFT JOIN trend_report_i18n i ON i.name = t.name AND i.locale = ?
		ORDER BY t.percent_change DESC`, locale).
		Scan(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trend reports: %w", err)
	}
	return reports, nil
}

func (s *PostgresStore) UpsertTrendReport(ctx context.Context, locale string, req registrystore.TrendReportUpsert) error {
	if strings.TrimSpace(req.Name) == "" {
		return &registrystore.ValidationError{Field: "name", Message: "must not be empty"}
	}
	// The base row keeps its text on conflict; only percent_change merges and
	// updated_at refreshes, which also promotes the row to "top" for
	// GetTopTrendReport. Locale text lands in the overlay table below.
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO trend_reports (name, percent_change, description, why_popular, updated_at)
		VALUES (?, COALESCE(?, 0), COALESCE(?, ''), COALESCE(?, ''), now())
		ON CONFLICT (name) DO UPDATE SET
			percent_change = COALESCE(?, trend_reports.percent_change),
			updated_at = now()`,
		req.Name, req.PercentChange, req.Description, req.WhyPopular,
		req.PercentChange,
	).Error
	if err != nil {
		return fmt.Errorf("failed to upsert trend report: %w", err)
	}

	if req.Description == nil && req.WhyPopular == nil {
		return nil
	}
	err = s.db.WithContext(ctx).Exec(`
		INSERT INTO trend_report_i18n (name, locale, description, why_popular)
		VALUES (?, ?, COALESCE(?, ''), COALESCE(?, ''))
		ON CONFLICT (name, locale) DO UPDATE SET
			description = COALESCE(?, trend_report_i18n.description),
			why_popular = COALESCE(?, trend_report_i18n.why_popular)`,
		req.Name, locale, req.Description, req.WhyPopular,
		req.Description, req.WhyPopular,
	).Error
	if err != nil {
		return fmt.Errorf("failed to upsert trend report overlay: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPopularityTrends(ctx context.Context, locale string) ([]model.PopularityTrend, error) {
	var trends []model.PopularityTrend
	err := s.db.WithContext(ctx).Raw(`
		SELECT p.name, p.direction, p.percent_change,
		       COALESCE(i.notes, p.notes) AS notes,
		       p.updated_at
		FROM popularity_trends p
		LEFT JOIN popularity_trend_i18n i ON i.name = p.name AND i.locale = ?
		ORDER BY p.percent_change DESC`, locale).
		Scan(&trends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list popularity trends: %w", err)
	}
	return trends, nil
}

func (s *PostgresStore) UpsertPopularityTrend(ctx context.Context, locale string, req registrystore.PopularityTrendUpsert) error {
	if strings.TrimSpace(req.Name) == "" {
		return &registrystore.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if req.Direction != model.TrendGrowing && req.Direction != model.TrendDecreasing {
		return &registrystore.ValidationError{Field: "direction", Message: "must be growing or decreasing"}
	}
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO popularity_trends (name, direction, percent_change, notes, updated_at)
		VALUES (?, ?, COALESCE(?, 0), COALESCE(?, ''), now())
		ON CONFLICT (name) DO UPDATE SET
			direction = EXCLUDED.direction,
			percent_change = COALESCE(?, popularity_trends.percent_change),
			updated_at = now()`,
		req.Name, req.Direction, req.PercentChange, req.Notes,
		req.PercentChange,
	).Error
	if err != nil {
		return fmt.Errorf("failed to upsert popularity trend: %w", err)
	}

	if req.Notes == nil {
		return nil
	}
	err = s.db.WithContext(ctx).Exec(`
		INSERT INTO popularity_trend_i18n (name, locale, notes)
		VALUES (?, ?, ?)
		ON CONFLICT (name, locale) DO UPDATE SET
			notes = EXCLUDED.notes`,
		req.Name, locale, req.Notes,
	).Error
	if err != nil {
		return fmt.Errorf("failed to upsert popularity trend overlay: %w", err)
	}
	return nil
}

// --- Files ---

func (s *PostgresStore) CreateFile(ctx context.Context, file *model.StoredFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID uuid.UUID) (*model.StoredFile, error) {
	var file model.StoredFile
	if err := s.db.WithContext(ctx).Where("id = ?", fileID).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "file", ID: fileID.String()}
		}
		return nil, fmt.Errorf("failed to load file record: %w", err)
	}
	return &file, nil
}

func (s *PostgresStore) ListFilesByMessageIDs(ctx context.Context, messageIDs []uuid.UUID) ([]model.StoredFile, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var files []model.StoredFile
	err := s.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list files by message: %w", err)
	}
	return files, nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, fileID uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", fileID).Delete(&model.StoredFile{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete file record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "file", ID: fileID.String()}
	}
	return nil
}

// --- Task queue ---

func (s *PostgresStore) CreateTask(ctx context.Context, taskType string, taskBody map[string]interface{}) error {
	var taskName *string
	if rawName, ok := taskBody["taskName"]; ok {
		if name, ok := rawName.(string); ok {
			trimmed := strings.TrimSpace(name)
			if trimmed != "" {
				taskName = &trimmed
			}
		}
	}

	task := model.Task{
		ID:       uuid.New(),
		TaskName: taskName,
		TaskType: taskType,
		TaskBody: taskBody,
		RetryAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		if isUniqueViolation(err) {
			// Named task already queued; enqueueing again is a no-op.
			return nil
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClaimReadyTasks(ctx context.Context, limit int) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).Raw(`
		WITH claimed AS (
			SELECT id
			FROM tasks
			WHERE retry_at <= NOW()
			ORDER BY retry_at, created_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t
		SET retry_at = NOW() + INTERVAL '5 minutes'
		FROM claimed
		WHERE t.id = claimed.id
		RETURNING t.*
	`, limit).
		Scan(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error {
	return s.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Updates(map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"retry_at":    time.Now().Add(retryDelay),
		"last_error":  errMsg,
	}).Error
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&model.Task{}).Error
}

// --- System ---

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
