package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the advisor service.
type Config struct {
	// Mode is "prod" (default) or "testing". Testing mode relaxes TLS and
	// enables permissive CORS regardless of CORSEnabled.
	Mode string

	// Database
	DBURL string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Datastore backend type
	DatastoreType string // "postgres"

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Sessions
	// SessionLifetime is the fixed validity window of a newly issued session
	// token. There is no refresh; a lapsed session requires re-login.
	SessionLifetime time.Duration
	// SessionSweepInterval controls how often the background sweeper deletes
	// expired session rows. Zero disables the sweeper.
	SessionSweepInterval  time.Duration
	SessionSweepBatchSize int
	// BcryptCost for password hashing. Zero uses the bcrypt default.
	BcryptCost int

	// Cache backend type for session validation: "redis", "memory", or "none".
	CacheType string

	// Redis
	RedisURL string

	// SessionCacheTTL bounds how long a validated session may be served from
	// cache. Kept short so the durable store remains the source of truth.
	SessionCacheTTL time.Duration

	// File store backend: "db" or "s3".
	FileStoreType string

	// File behavior.
	FileMaxSize int64
	// ProfilePictureMaxSize caps profile picture uploads (original app: 5 MB).
	ProfilePictureMaxSize int64
	// InlineAttachmentMaxSize caps base64-inlined report payloads in chat
	// responses; larger files are download-URL only.
	InlineAttachmentMaxSize  int64
	FileDownloadURLExpiresIn time.Duration

	// S3
	S3Bucket           string
	S3Prefix           string
	S3ExternalEndpoint string
	S3UsePathStyle     bool

	// Completion provider (OpenRouter-compatible chat completions API).
	CompletionAPIKey   string
	CompletionModel    string
	CompletionBaseURL  string
	CompletionTimeout  time.Duration
	CompletionReferer  string
	CompletionAppTitle string

	// Vector store type: "pgvector", "qdrant", or "" (disabled).
	VectorType string

	// Run vector migrations on startup.
	VectorMigrateAtStart bool

	// Number of messages to embed and index per background indexer tick.
	VectorIndexerBatchSize int

	// Qdrant
	QdrantHost           string
	QdrantPort           int
	QdrantCollectionName string
	QdrantAPIKey         string
	QdrantUseTLS         bool
	QdrantStartupTimeout time.Duration

	// Embedding type: "none", "openai" (any OpenAI-compatible endpoint), or
	// "local" (hash-based, deterministic; suitable for tests only).
	EmbedType string

	// Embedding provider
	EmbedAPIKey     string
	EmbedModelName  string
	EmbedBaseURL    string
	EmbedDimensions int

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port (or
	// ADVISOR_SERVICE_MANAGEMENT_PORT) was explicitly provided. When false,
	// management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints.
	// Disabled by default to suppress probe noise.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Encryption
	// EncryptionProviders is a comma-separated provider list; the first entry
	// encrypts new data, the rest remain available for decryption routing.
	EncryptionProviders string
	// EncryptionKey is a comma-separated list of base64 AES-256 keys for the
	// "local" provider. First key is primary, the rest are legacy rotation keys.
	EncryptionKey             string
	EncryptionVaultTransitKey string
	// EncryptionKMSKeyID is the AWS KMS key ID or ARN used by the "kms" provider.
	EncryptionKMSKeyID string
	// EncryptionFilesDisabled skips the envelope layer on the file store even
	// when a real provider is configured.
	EncryptionFilesDisabled bool

	// Body size limit (bytes)
	MaxBodySize int64

	// Temporary file directory. Empty uses platform default temp directory.
	TempDir string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                     ModeProd,
		DatastoreType:            "postgres",
		DatastoreMigrateAtStart:  true,
		DBMaxOpenConns:           25,
		DBMaxIdleConns:           5,
		SessionLifetime:          720 * time.Hour, // 30 days
		SessionSweepInterval:     time.Hour,
		SessionSweepBatchSize:    1000,
		CacheType:                "none",
		SessionCacheTTL:          5 * time.Minute,
		FileStoreType:            "db",
		FileMaxSize:              10 * 1024 * 1024,
		ProfilePictureMaxSize:    5 * 1024 * 1024,
		InlineAttachmentMaxSize:  1024 * 1024,
		FileDownloadURLExpiresIn: 5 * time.Minute,
		CompletionModel:          "openrouter/auto",
		CompletionBaseURL:        "https://openrouter.ai/api/v1",
		CompletionTimeout:        60 * time.Second,
		VectorType:               "",
		VectorMigrateAtStart:     true,
		VectorIndexerBatchSize:   500,
		QdrantHost:               "localhost",
		QdrantPort:               6334,
		QdrantCollectionName:     "advisor-messages",
		QdrantStartupTimeout:     30 * time.Second,
		EmbedType:                "none",
		EmbedModelName:           "text-embedding-3-small",
		EmbedBaseURL:             "https://api.openai.com/v1",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		EncryptionProviders: "plain",
		MaxBodySize:         20 * 1024 * 1024,
		DrainTimeout:        30,
	}
}

// QdrantAddress returns the host:port gRPC address for the Qdrant client.
func (c *Config) QdrantAddress() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}

// ResolvedTempDir returns the configured temp directory or the platform default.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	return os.TempDir()
}
