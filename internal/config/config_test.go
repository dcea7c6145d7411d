package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, ModeProd, cfg.Mode)
	require.Equal(t, "postgres", cfg.DatastoreType)
	require.Equal(t, 720*time.Hour, cfg.SessionLifetime)
	require.Equal(t, "none", cfg.CacheType)
	require.Equal(t, "db", cfg.FileStoreType)
	require.Equal(t, "plain", cfg.EncryptionProviders)
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}

func TestQdrantAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QdrantHost = "qdrant.internal"
	cfg.QdrantPort = 7443
	require.Equal(t, "qdrant.internal:7443", cfg.QdrantAddress())
}
