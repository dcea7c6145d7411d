package encrypt_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/envelope"
	filestoreencrypt "github.com/consulta/advisor-service/internal/plugin/filestore/encrypt"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"

	_ "github.com/consulta/advisor-service/internal/plugin/encrypt/local"
)

const testKeyHex = "6368616e676520746869732070617373776f726420746f206120736563726574"

type memFileStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMemFileStore() *memFileStore {
	return &memFileStore{data: map[string][]byte{}}
}

func (s *memFileStore) Store(_ context.Context, r io.Reader, maxSize int64, _ string) (*registryfilestore.StoreResult, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, fmt.Errorf("file exceeds maximum size")
	}
	key := fmt.Sprintf("key-%d", len(s.data))
	s.mu.Lock()
	s.data[key] = buf.Bytes()
	s.mu.Unlock()
	return &registryfilestore.StoreResult{StorageKey: key, Size: n}, nil
}

func (s *memFileStore) Retrieve(_ context.Context, storageKey string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.data[storageKey]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memFileStore) Delete(_ context.Context, storageKey string) error {
	s.mu.Lock()
	delete(s.data, storageKey)
	s.mu.Unlock()
	return nil
}

func (s *memFileStore) GetSignedURL(_ context.Context, _ string, _ time.Duration) (*url.URL, error) {
	return &url.URL{Scheme: "https", Host: "inner.example.com"}, nil
}

func setupEncryptStore(t *testing.T) (registryfilestore.FileStore, *memFileStore) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.EncryptionProviders = "local"
	cfg.EncryptionKey = testKeyHex

	svc, err := envelope.New(context.Background(), &cfg)
	require.NoError(t, err)

	inner := newMemFileStore()
	return filestoreencrypt.Wrap(inner, svc), inner
}

func TestEncryptedRoundTrip(t *testing.T) {
	fs, inner := setupEncryptStore(t)
	ctx := context.Background()

	plaintext := []byte("confidential sales projections for q3")
	result, err := fs.Store(ctx, bytes.NewReader(plaintext), 1024, "text/plain")
	require.NoError(t, err)

	// Reported size and hash are those of the plaintext.
	assert.Equal(t, int64(len(plaintext)), result.Size)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(plaintext)), result.SHA256)

	// The inner store only ever sees ASE1 ciphertext.
	stored := inner.data[result.StorageKey]
	require.True(t, envelope.HasMagic(stored))
	assert.NotContains(t, string(stored), "confidential")

	rc, err := fs.Retrieve(ctx, result.StorageKey)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptedStoreEnforcesPlaintextLimit(t *testing.T) {
	fs, _ := setupEncryptStore(t)

	_, err := fs.Store(context.Background(), bytes.NewReader(bytes.Repeat([]byte("a"), 50)), 10, "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
}

func TestEncryptedSignedURLSuppressed(t *testing.T) {
	fs, _ := setupEncryptStore(t)

	// The inner store can sign, but a signed URL would serve ciphertext.
	u, err := fs.GetSignedURL(context.Background(), "any", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, u)
}
