package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// VectorSearchResult is one hit from a similarity query; higher Score means
// closer. The json tags shape the /search API response directly.
type VectorSearchResult struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Score          float64   `json:"score"`
}

// UpsertRequest carries one message's embedding to the store.
type UpsertRequest struct {
	ConversationID uuid.UUID
	MessageID      uuid.UUID
	Embedding      []float32
	ModelName      string
}

// VectorStore is the SPI for semantic search backends.
type VectorStore interface {
	// Search returns the nearest messages to embedding, restricted to the
	// given conversations.
	Search(ctx context.Context, embedding []float32, conversationIDs []uuid.UUID, limit int) ([]VectorSearchResult, error)
	// Upsert writes or replaces the embeddings for a batch of messages.
	Upsert(ctx context.Context, messages []UpsertRequest) error
	// DeleteByConversationID drops every embedding for one conversation.
	DeleteByConversationID(ctx context.Context, conversationID uuid.UUID) error
	// IsEnabled reports whether searches will actually be served.
	IsEnabled() bool
	// Name identifies the backend ("qdrant", "pgvector").
	Name() string
}

// Loader builds a VectorStore from the config carried in ctx.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin bundles a vector store name with its loader.
type Plugin struct {
	Name   string
	Loader Loader
}

var byName = map[string]Plugin{}

// Register adds a vector store plugin. Duplicate names panic.
func Register(p Plugin) {
	if _, taken := byName[p.Name]; taken {
		panic("vector store plugin " + p.Name + " registered twice")
	}
	byName[p.Name] = p
}

// Names lists the registered vector store plugins in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select returns the loader registered under name.
func Select(name string) (Loader, error) {
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("no %q vector store plugin (have: %s)", name, strings.Join(Names(), ", "))
	}
	return p.Loader, nil
}
