// Package qdrant registers the "qdrant" vector store plugin. Message
// embeddings live in a single collection; points carry the owning
// conversation in their payload so search and delete can filter on it.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/consulta/advisor-service/internal/config"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"
	registryvector "github.com/consulta/advisor-service/internal/registry/vector"
)

func init() {
	registryvector.Register(registryvector.Plugin{Name: "qdrant", Loader: load})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &collectionMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{
		points:     pb.NewPointsClient(conn),
		collection: effectiveCollectionName(cfg),
	}, nil
}

// Store talks to Qdrant over gRPC. The points client keeps the underlying
// connection alive for the life of the process.
type Store struct {
	points     pb.PointsClient
	collection string
}

func (s *Store) IsEnabled() bool { return true }
func (s *Store) Name() string    { return "qdrant" }

// Search runs a cosine-similarity query limited to the given conversations.
// An empty conversation list short-circuits: without the filter the query
// would roam across every caller's data.
func (s *Store) Search(ctx context.Context, embedding []float32, conversationIDs []uuid.UUID, limit int) ([]registryvector.VectorSearchResult, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(conversationIDs))
	for i, id := range conversationIDs {
		ids[i] = id.String()
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         conversationFilter(ids...),
	})
	if err != nil {
		return nil, err
	}

	results := make([]registryvector.VectorSearchResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		results = append(results, scoredResult(pt))
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results, nil
}

// Upsert writes one point per message, keyed by message ID so re-indexing a
// message replaces its previous embedding.
func (s *Store) Upsert(ctx context.Context, messages []registryvector.UpsertRequest) error {
	points := make([]*pb.PointStruct, len(messages))
	for i, m := range messages {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: m.MessageID.String()}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: m.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"message_id":      strVal(m.MessageID.String()),
				"conversation_id": strVal(m.ConversationID.String()),
				"model":           strVal(m.ModelName),
			},
		}
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	return err
}

// DeleteByConversationID drops every point whose payload names the
// conversation, regardless of message ID.
func (s *Store) DeleteByConversationID(ctx context.Context, conversationID uuid.UUID) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: conversationFilter(conversationID.String()),
			},
		},
	})
	return err
}

// conversationFilter matches points whose conversation_id payload equals any
// of the given IDs.
func conversationFilter(ids ...string) *pb.Filter {
	match := &pb.Match{MatchValue: &pb.Match_Keywords{
		Keywords: &pb.RepeatedStrings{Strings: ids},
	}}
	if len(ids) == 1 {
		match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: ids[0]}}
	}
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{Key: "conversation_id", Match: match},
			},
		}},
	}
}

// scoredResult converts a search hit. The generated getters are nil-safe, so
// a point with missing payload fields just yields zero UUIDs.
func scoredResult(pt *pb.ScoredPoint) registryvector.VectorSearchResult {
	payload := pt.GetPayload()
	r := registryvector.VectorSearchResult{Score: float64(pt.GetScore())}
	if id, err := uuid.Parse(payload["message_id"].GetStringValue()); err == nil {
		r.MessageID = id
	}
	if id, err := uuid.Parse(payload["conversation_id"].GetStringValue()); err == nil {
		r.ConversationID = id
	}
	return r
}

func strVal(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// collectionMigrator creates the collection at startup when vector search is
// on and migrations are enabled. Runs after the SQL migrators.
type collectionMigrator struct{}

func (m *collectionMigrator) Name() string { return "qdrant" }

func (m *collectionMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}
	log.Info("Running migration", "name", m.Name())

	ctx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return ensureCollection(ctx, pb.NewCollectionsClient(conn), cfg)
}

func ensureCollection(ctx context.Context, collections pb.CollectionsClient, cfg *config.Config) error {
	name := effectiveCollectionName(cfg)
	if _, err := collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}
	_, err := collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     effectiveEmbeddingDimension(cfg),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 u64(16),
			EfConstruct:       u64(64),
			FullScanThreshold: u64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection %q: %w", name, err)
	}
	log.Info("Created Qdrant collection", "name", name)
	return nil
}

func u64(v uint64) *uint64 { return &v }

func dial(cfg *config.Config) (*grpc.ClientConn, error) {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCreds{
			key:        cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return conn, nil
}

// apiKeyCreds sends the Qdrant API key as per-RPC metadata. RequireTLS
// mirrors the transport setting so a keyed deployment cannot silently leak
// the key over plaintext.
type apiKeyCreds struct {
	key        string
	requireTLS bool
}

func (a apiKeyCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.key}, nil
}

func (a apiKeyCreds) RequireTransportSecurity() bool { return a.requireTLS }

// effectiveEmbeddingDimension sizes the collection to the active embedder:
// an explicit override wins, then the local hash embedder's 384, then
// OpenAI's text-embedding-3-small default of 1536.
func effectiveEmbeddingDimension(cfg *config.Config) uint64 {
	if cfg == nil {
		return 1536
	}
	if cfg.EmbedDimensions > 0 {
		return uint64(cfg.EmbedDimensions)
	}
	if strings.EqualFold(strings.TrimSpace(cfg.EmbedType), "local") {
		return 384
	}
	return 1536
}

// effectiveCollectionName prefers the configured name. Otherwise it derives
// one from the embedding model and dimension so collections with
// incompatible vectors never collide.
func effectiveCollectionName(cfg *config.Config) string {
	if cfg == nil {
		return "advisor-messages"
	}
	if name := strings.TrimSpace(cfg.QdrantCollectionName); name != "" {
		return name
	}
	model := "openai-text-embedding-3-small"
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedType)) {
	case "local":
		model = "all-minilm-l6-v2"
	case "openai":
		if custom := strings.TrimSpace(cfg.EmbedModelName); custom != "" {
			model = custom
		}
	}
	model = strings.NewReplacer("/", "-", " ", "-", "_", "-").Replace(strings.ToLower(model))
	return fmt.Sprintf("advisor-service_%s-%d", model, effectiveEmbeddingDimension(cfg))
}
