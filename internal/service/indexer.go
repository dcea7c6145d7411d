package service

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/consulta/advisor-service/internal/model"
	registryembed "github.com/consulta/advisor-service/internal/registry/embed"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	registryvector "github.com/consulta/advisor-service/internal/registry/vector"
)

// BackgroundIndexer feeds new messages into the vector store. Each tick it
// polls for rows whose indexed_at is unset, embeds their content in one batch,
// upserts the vectors, and stamps the rows so the next poll skips them.
// Indexing is best-effort: a failed pass leaves the rows pending and the next
// tick retries them.
type BackgroundIndexer struct {
	store    registrystore.AdvisorStore
	embedder registryembed.Embedder
	vector   registryvector.VectorStore
	interval time.Duration
	batch    int
}

// NewBackgroundIndexer creates a new indexer.
func NewBackgroundIndexer(store registrystore.AdvisorStore, embedder registryembed.Embedder, vector registryvector.VectorStore, batchSize int) *BackgroundIndexer {
	return &BackgroundIndexer{
		store:    store,
		embedder: embedder,
		vector:   vector,
		interval: 30 * time.Second,
		batch:    batchSize,
	}
}

// Start runs the indexing loop until ctx is cancelled.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	if b.embedder == nil || b.vector == nil || !b.vector.IsEnabled() {
		log.Info("Background indexer disabled (no embedder or vector store)")
		return
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.indexPending(ctx)
			if err != nil {
				log.Error("Indexer pass failed", "err", err)
			}
			if n > 0 {
				log.Info("Indexed messages", "count", n)
			}
		}
	}
}

// indexPending handles one batch of unindexed messages and reports how many
// were stamped done.
func (b *BackgroundIndexer) indexPending(ctx context.Context) (int, error) {
	pending, err := b.store.FindMessagesPendingVectorIndexing(ctx, b.batch)
	if err != nil {
		return 0, fmt.Errorf("listing unindexed messages: %w", err)
	}

	// Messages without text (file-only turns) have nothing to embed; stamp
	// them right away so the pending query stops returning them.
	now := time.Now()
	done := 0
	todo := pending[:0]
	for _, m := range pending {
		if m.Content == "" {
			done += b.stamp(ctx, m.ID, now)
			continue
		}
		todo = append(todo, m)
	}
	if len(todo) == 0 {
		return done, nil
	}

	if err := b.embedAndUpsert(ctx, todo); err != nil {
		return done, err
	}
	for _, m := range todo {
		done += b.stamp(ctx, m.ID, now)
	}
	return done, nil
}

// embedAndUpsert embeds the whole batch in a single request and writes all
// vectors in one upsert.
func (b *BackgroundIndexer) embedAndUpsert(ctx context.Context, msgs []model.Message) error {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Content
	}
	embeddings, err := b.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d messages: %w", len(msgs), err)
	}

	upserts := make([]registryvector.UpsertRequest, len(msgs))
	for i, m := range msgs {
		upserts[i] = registryvector.UpsertRequest{
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			Embedding:      embeddings[i],
			ModelName:      b.embedder.ModelName(),
		}
	}
	if err := b.vector.Upsert(ctx, upserts); err != nil {
		return fmt.Errorf("upserting vectors: %w", err)
	}
	return nil
}

// stamp records indexed_at for one message, returning 1 on success. A failed
// stamp is logged and the row stays pending for the next pass.
func (b *BackgroundIndexer) stamp(ctx context.Context, id uuid.UUID, at time.Time) int {
	if err := b.store.SetMessageIndexedAt(ctx, id, at); err != nil {
		log.Error("Indexer: stamping indexed_at failed", "messageId", id, "err", err)
		return 0
	}
	return 1
}
