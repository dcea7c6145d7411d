package dbstore_test

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
	"github.com/consulta/advisor-service/internal/testutil/testpg"

	_ "github.com/consulta/advisor-service/internal/plugin/filestore/dbstore"
)

func setupFileStore(t *testing.T) registryfilestore.FileStore {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registryfilestore.Select("db")
	require.NoError(t, err)
	fs, err := loader(ctx)
	require.NoError(t, err)
	return fs
}

func TestStoreAndRetrieve(t *testing.T) {
	fs := setupFileStore(t)
	ctx := context.Background()

	content := []byte("revenue,month\n1200,jan\n1900,feb\n")
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
}

func TestStoreRejectsOversized(t *testing.T) {
	fs := setupFileStore(t)

	_, err := fs.Store(context.Background(), strings.NewReader(strings.Repeat("x", 100)), 10, "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
}

func TestRetrieveMissing(t *testing.T) {
	fs := setupFileStore(t)

	_, err := fs.Retrieve(context.Background(), "11111111-2222-3333-4444-555555555555")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDelete(t *testing.T) {
	fs := setupFileStore(t)
	ctx := context.Background()

	result, err := fs.Store(ctx, strings.NewReader("to be deleted"), 1024, "text/plain")
	require.NoError(t, err)

	require.NoError(t, fs.Delete(ctx, result.StorageKey))

	_, err = fs.Retrieve(ctx, result.StorageKey)
	assert.Error(t, err)

	// Deleting an already-deleted key is not an error.
	assert.NoError(t, fs.Delete(ctx, result.StorageKey))
}

func TestSignedURLUnsupported(t *testing.T) {
	fs := setupFileStore(t)

	u, err := fs.GetSignedURL(context.Background(), "any-key", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, u)
}
