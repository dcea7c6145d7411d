package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/consulta/advisor-service/internal/config"
	registrycache "github.com/consulta/advisor-service/internal/registry/cache"
	registryembed "github.com/consulta/advisor-service/internal/registry/embed"
	registryencrypt "github.com/consulta/advisor-service/internal/registry/encrypt"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	registryvector "github.com/consulta/advisor-service/internal/registry/vector"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/consulta/advisor-service/internal/plugin/cache/memory"
	_ "github.com/consulta/advisor-service/internal/plugin/cache/noop"
	_ "github.com/consulta/advisor-service/internal/plugin/cache/redis"
	_ "github.com/consulta/advisor-service/internal/plugin/embed/disabled"
	_ "github.com/consulta/advisor-service/internal/plugin/embed/local"
	_ "github.com/consulta/advisor-service/internal/plugin/embed/openai"
	_ "github.com/consulta/advisor-service/internal/plugin/encrypt/awskms"
	_ "github.com/consulta/advisor-service/internal/plugin/encrypt/local"
	_ "github.com/consulta/advisor-service/internal/plugin/encrypt/plain"
	_ "github.com/consulta/advisor-service/internal/plugin/encrypt/vault"
	_ "github.com/consulta/advisor-service/internal/plugin/filestore/dbstore"
	_ "github.com/consulta/advisor-service/internal/plugin/filestore/s3store"
	_ "github.com/consulta/advisor-service/internal/plugin/route/business"
	_ "github.com/consulta/advisor-service/internal/plugin/route/legal"
	_ "github.com/consulta/advisor-service/internal/plugin/route/system"
	_ "github.com/consulta/advisor-service/internal/plugin/store/postgres"
	_ "github.com/consulta/advisor-service/internal/plugin/vector/pgvector"
	_ "github.com/consulta/advisor-service/internal/plugin/vector/qdrant"
)

// intFlags holds flag destinations that need unit conversion before they land
// in the Config (cli represents them as plain integers).
type intFlags struct {
	readHeaderTimeoutSecs int
	sessionLifetimeHours  int
	sessionCacheTTLSecs   int
	completionTimeoutSecs int
	fileMaxSizeBytes      int
}

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	ints := intFlags{
		readHeaderTimeoutSecs: int(cfg.Listener.ReadHeaderTimeout / time.Second),
		sessionLifetimeHours:  int(cfg.SessionLifetime / time.Hour),
		sessionCacheTTLSecs:   int(cfg.SessionCacheTTL / time.Second),
		completionTimeoutSecs: int(cfg.CompletionTimeout / time.Second),
		fileMaxSizeBytes:      int(cfg.FileMaxSize),
	}
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the advisor service HTTP server",
		Flags: flags(&cfg, &ints),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(ints.readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.SessionLifetime = time.Duration(ints.sessionLifetimeHours) * time.Hour
			cfg.SessionCacheTTL = time.Duration(ints.sessionCacheTTLSecs) * time.Second
			cfg.CompletionTimeout = time.Duration(ints.completionTimeoutSecs) * time.Second
			cfg.FileMaxSize = int64(ints.fileMaxSizeBytes)
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, ints *intFlags) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Runtime mode (prod|testing); testing relaxes TLS and enables permissive CORS",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; omit to use a generated self-signed certificate",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: &ints.readHeaderTimeoutSecs,
			Value:       ints.readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.StringFlag{
			Name:        "temp-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_TEMP_DIR"),
			Destination: &cfg.TempDir,
			Usage:       "Directory for temporary files; defaults to OS temp directory",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (health, metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS headers on the main API",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins; empty allows any origin",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL",
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run schema migrations on startup",
		},

		// ── Sessions ──────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "session-lifetime-hours",
			Category:    "Sessions:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_SESSION_LIFETIME_HOURS"),
			Destination: &ints.sessionLifetimeHours,
			Value:       ints.sessionLifetimeHours,
			Usage:       "Validity window of issued session tokens; there is no refresh",
		},
		&cli.IntFlag{
			Name:        "bcrypt-cost",
			Category:    "Sessions:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_BCRYPT_COST"),
			Destination: &cfg.BcryptCost,
			Usage:       "bcrypt cost for password hashing (0 = library default)",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Session cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-hosts",
			Category:    "Cache:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_REDIS_HOSTS"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.IntFlag{
			Name:        "session-cache-ttl-seconds",
			Category:    "Cache:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_SESSION_CACHE_TTL_SECONDS"),
			Destination: &ints.sessionCacheTTLSecs,
			Value:       ints.sessionCacheTTLSecs,
			Usage:       "How long a validated session may be served from cache",
		},

		// ── File Storage ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "files-kind",
			Category:    "File Storage:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_FILES_KIND"),
			Destination: &cfg.FileStoreType,
			Value:       cfg.FileStoreType,
			Usage:       "File store backend (" + strings.Join(registryfilestore.Names(), "|") + ")",
		},
		&cli.IntFlag{
			Name:        "files-max-size",
			Category:    "File Storage:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_FILES_MAX_SIZE"),
			Destination: &ints.fileMaxSizeBytes,
			Value:       ints.fileMaxSizeBytes,
			Usage:       "Maximum stored file size in bytes",
		},
		&cli.StringFlag{
			Name:        "files-s3-bucket",
			Category:    "File Storage:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_FILES_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket for generated files",
		},
		&cli.StringFlag{
			Name:        "files-s3-prefix",
			Category:    "File Storage:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_FILES_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix inside the S3 bucket",
		},
		&cli.StringFlag{
			Name:        "files-s3-external-endpoint",
			Category:    "File Storage:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_FILES_S3_EXTERNAL_ENDPOINT"),
			Destination: &cfg.S3ExternalEndpoint,
			Usage:       "Public endpoint substituted into presigned URLs (LocalStack/MinIO)",
		},
		&cli.BoolFlag{
			Name:        "files-s3-use-path-style",
			Category:    "File Storage:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_FILES_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (required for LocalStack/MinIO)",
		},

		// ── Completion Provider ───────────────────────────────────
		&cli.StringFlag{
			Name:        "completion-api-key",
			Category:    "Completion Provider:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_COMPLETION_API_KEY", "OPENROUTER_API_KEY"),
			Destination: &cfg.CompletionAPIKey,
			Usage:       "API key for the chat completion provider",
		},
		&cli.StringFlag{
			Name:        "completion-model",
			Category:    "Completion Provider:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_COMPLETION_MODEL"),
			Destination: &cfg.CompletionModel,
			Value:       cfg.CompletionModel,
			Usage:       "Model identifier sent with completion requests",
		},
		&cli.StringFlag{
			Name:        "completion-base-url",
			Category:    "Completion Provider:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_COMPLETION_BASE_URL"),
			Destination: &cfg.CompletionBaseURL,
			Value:       cfg.CompletionBaseURL,
			Usage:       "Base URL of the OpenRouter-compatible completions API",
		},
		&cli.IntFlag{
			Name:        "completion-timeout-seconds",
			Category:    "Completion Provider:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_COMPLETION_TIMEOUT_SECONDS"),
			Destination: &ints.completionTimeoutSecs,
			Value:       ints.completionTimeoutSecs,
			Usage:       "HTTP timeout for completion requests",
		},
		&cli.StringFlag{
			Name:        "completion-referer",
			Category:    "Completion Provider:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_COMPLETION_REFERER"),
			Destination: &cfg.CompletionReferer,
			Usage:       "Optional HTTP-Referer header for provider attribution",
		},
		&cli.StringFlag{
			Name:        "completion-app-title",
			Category:    "Completion Provider:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_COMPLETION_APP_TITLE"),
			Destination: &cfg.CompletionAppTitle,
			Usage:       "Optional X-Title header for provider attribution",
		},

		// ── Vector Store ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector store (" + strings.Join(registryvector.Names(), "|") + "); empty disables semantic search",
		},
		&cli.IntFlag{
			Name:        "vector-indexer-batch-size",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_VECTOR_INDEXER_BATCH_SIZE"),
			Destination: &cfg.VectorIndexerBatchSize,
			Value:       cfg.VectorIndexerBatchSize,
			Usage:       "Number of messages to embed and index per background indexer tick",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_VECTOR_QDRANT_HOST", "ADVISOR_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant host",
		},
		&cli.IntFlag{
			Name:        "vector-qdrant-port",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_VECTOR_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-collection",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_VECTOR_QDRANT_COLLECTION"),
			Destination: &cfg.QdrantCollectionName,
			Value:       cfg.QdrantCollectionName,
			Usage:       "Qdrant collection name",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_VECTOR_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},

		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "embedding-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_EMBEDDING_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.EmbedAPIKey,
			Usage:       "API key for the embedding provider",
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_EMBEDDING_MODEL"),
			Destination: &cfg.EmbedModelName,
			Value:       cfg.EmbedModelName,
			Usage:       "Embedding model name",
		},
		&cli.StringFlag{
			Name:        "embedding-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_EMBEDDING_BASE_URL"),
			Destination: &cfg.EmbedBaseURL,
			Value:       cfg.EmbedBaseURL,
			Usage:       "Base URL of the OpenAI-compatible embeddings API",
		},
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.EmbedDimensions,
			Usage:       "Requested embedding dimensionality (0 = provider default)",
		},

		// ── Encryption ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "encryption-providers",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_ENCRYPTION_PROVIDERS"),
			Destination: &cfg.EncryptionProviders,
			Value:       cfg.EncryptionProviders,
			Usage:       "Comma-separated provider list (" + strings.Join(registryencrypt.Names(), "|") + "); first entry encrypts new data",
		},
		&cli.StringFlag{
			Name:        "encryption-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_ENCRYPTION_KEY"),
			Destination: &cfg.EncryptionKey,
			Usage:       "Comma-separated base64 AES-256 keys for the 'local' provider; first key is primary",
		},
		&cli.StringFlag{
			Name:        "encryption-vault-transit-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_ENCRYPTION_VAULT_TRANSIT_KEY"),
			Destination: &cfg.EncryptionVaultTransitKey,
			Usage:       "Vault transit key name for the 'vault' provider",
		},
		&cli.StringFlag{
			Name:        "encryption-kms-key-id",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_ENCRYPTION_KMS_KEY_ID"),
			Destination: &cfg.EncryptionKMSKeyID,
			Usage:       "AWS KMS key ID or ARN for the 'kms' provider",
		},
		&cli.BoolFlag{
			Name:        "encryption-files-disabled",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_ENCRYPTION_FILES_DISABLED"),
			Destination: &cfg.EncryptionFilesDisabled,
			Usage:       "Skip the envelope layer on the file store even when a real provider is configured",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("ADVISOR_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=advisor-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isStreamingRequest(c.Request) {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

// isStreamingRequest reports whether the request is a multipart upload that
// enforces its own size cap and must bypass the JSON body limit.
func isStreamingRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	if req.Method != http.MethodPost || req.URL.Path != "/api/auth/profile/picture" {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type")))
	return strings.HasPrefix(contentType, "multipart/form-data")
}
