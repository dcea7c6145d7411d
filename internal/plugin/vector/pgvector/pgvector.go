// Package pgvector keeps message embeddings in the same Postgres instance as
// the rest of the data, using the pgvector extension. It is the zero-extra-
// infrastructure alternative to the qdrant plugin: one table, cosine distance,
// no second service to operate.
package pgvector

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/consulta/advisor-service/internal/config"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"
	registryvector "github.com/consulta/advisor-service/internal/registry/vector"
)

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &schemaMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	db, err := connect(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return &Store{db: db}, nil
}

// connect opens a dedicated gorm handle with its logger silenced; vector
// traffic is chatty and the store already logs at the call sites that matter.
func connect(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
}

// Store implements VectorStore on top of the message_vectors table.
type Store struct {
	db *gorm.DB
}

func (s *Store) IsEnabled() bool { return true }
func (s *Store) Name() string    { return "pgvector" }

// searchHit mirrors one row of the similarity query.
type searchHit struct {
	MessageID      uuid.UUID `gorm:"column:message_id"`
	ConversationID uuid.UUID `gorm:"column:conversation_id"`
	Score          float64   `gorm:"column:score"`
}

// Search returns the messages nearest to embedding, best first. The score is
// cosine similarity (1 - distance), so higher means closer. An empty
// conversation list means the caller owns nothing searchable and short-circuits
// to no hits rather than querying across everyone's data.
func (s *Store) Search(ctx context.Context, embedding []float32, conversationIDs []uuid.UUID, limit int) ([]registryvector.VectorSearchResult, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}

	vec := pgvec.NewVector(embedding)
	var hits []searchHit
	err := s.db.WithContext(ctx).Raw(`
		SELECT message_id, conversation_id,
		       1 - (embedding <=> ?::vector) AS score
		FROM message_vectors
		WHERE conversation_id = ANY(?)
		ORDER BY embedding <=> ?::vector
		LIMIT ?`,
		vec, conversationIDs, vec, limit,
	).Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	if len(hits) == 0 {
		return nil, nil
	}
	results := make([]registryvector.VectorSearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, registryvector.VectorSearchResult{
			MessageID:      h.MessageID,
			ConversationID: h.ConversationID,
			Score:          h.Score,
		})
	}
	return results, nil
}

// Upsert writes one row per message, atomically for the whole batch. Re-indexed
// messages overwrite their previous embedding so a model switch converges
// instead of duplicating rows.
func (s *Store) Upsert(ctx context.Context, messages []registryvector.UpsertRequest) error {
	if len(messages) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range messages {
			err := tx.Exec(`
				INSERT INTO message_vectors (message_id, conversation_id, embedding, model)
				VALUES (?, ?, ?::vector, ?)
				ON CONFLICT (message_id)
				DO UPDATE SET embedding = EXCLUDED.embedding, model = EXCLUDED.model`,
				m.MessageID, m.ConversationID, pgvec.NewVector(m.Embedding), m.ModelName,
			).Error
			if err != nil {
				return fmt.Errorf("pgvector upsert %s: %w", m.MessageID, err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteByConversationID(ctx context.Context, conversationID uuid.UUID) error {
	return s.db.WithContext(ctx).Exec(
		"DELETE FROM message_vectors WHERE conversation_id = ?",
		conversationID,
	).Error
}

//go:embed db/pgvector-schema.sql
var schemaSQL string

// schemaMigrator applies the pgvector DDL at startup when the deployment opted
// in. It runs after the relational schema (Order 100) so CREATE EXTENSION can
// assume the database itself already exists.
type schemaMigrator struct{}

func (m *schemaMigrator) Name() string { return "pgvector" }

func (m *schemaMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if !wanted(cfg) {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := connect(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return db.Exec(schemaSQL).Error
}

func wanted(cfg *config.Config) bool {
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "pgvector" {
		return false
	}
	if cfg.DBURL == "" {
		return false
	}
	// The schema lives in the relational database, so a non-postgres datastore
	// has nowhere to put it.
	return cfg.DatastoreType == "" || cfg.DatastoreType == "postgres"
}
