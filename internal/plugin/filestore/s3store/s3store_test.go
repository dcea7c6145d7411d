package s3store_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulta/advisor-service/internal/config"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
	"github.com/consulta/advisor-service/internal/testutil/tests3"

	_ "github.com/consulta/advisor-service/internal/plugin/filestore/s3store"
)

func setupS3FileStore(t *testing.T, prefix string) registryfilestore.FileStore {
	t.Helper()

	bucket := tests3.StartS3(t)

	cfg := config.DefaultConfig()
	cfg.S3Bucket = bucket
	cfg.S3Prefix = prefix
	cfg.S3UsePathStyle = true
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registryfilestore.Select("s3")
	require.NoError(t, err)
	fs, err := loader(ctx)
	require.NoError(t, err)
	return fs
}

func TestS3StoreRoundTrip(t *testing.T) {
	fs := setupS3FileStore(t, "")
	ctx := context.Background()

	content := []byte("Item,Price\nBread,120\nMilk,80\n")
	result, err := fs.Store(ctx, bytes.NewReader(content), 1024, "text/csv")
	require.NoError(t, err)
	require.NotEmpty(t, result.StorageKey)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(content)), result.SHA256)

	rc, err := fs.Retrieve(ctx, result.StorageKey)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Oversized uploads never reach the bucket.
	_, err = fs.Store(ctx, strings.NewReader(strings.Repeat("x", 100)), 10, "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")

	require.NoError(t, fs.Delete(ctx, result.StorageKey))
	_, err = fs.Retrieve(ctx, result.StorageKey)
	assert.Error(t, err)
}

func TestS3StoreKeyPrefixAndSignedURL(t *testing.T) {
	fs := setupS3FileStore(t, "reports")
	ctx := context.Background()

	content := []byte("monthly margin breakdown")
	result, err := fs.Store(ctx, bytes.NewReader(content), 1024, "text/plain")
	require.NoError(t, err)

	rc, err := fs.Retrieve(ctx, result.StorageKey)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	u, err := fs.GetSignedURL(ctx, result.StorageKey, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Contains(t, u.Path, "reports/"+result.StorageKey)
	assert.Contains(t, u.RawQuery, "X-Amz-Signature")
}
