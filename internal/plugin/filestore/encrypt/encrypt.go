// Package encrypt decorates a FileStore with ASE1 envelope encryption. The
// inner store only ever sees ciphertext; callers only ever see plaintext.
package encrypt

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/consulta/advisor-service/internal/envelope"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
)

// Wrap layers ASE1-based AES-GCM encryption from svc over inner.
func Wrap(inner registryfilestore.FileStore, svc *envelope.Service) registryfilestore.FileStore {
	return &cryptStore{inner: inner, svc: svc}
}

type cryptStore struct {
	inner registryfilestore.FileStore
	svc   *envelope.Service
}

var _ registryfilestore.FileStore = (*cryptStore)(nil)

// Store seals the upload and hands the ciphertext to the inner store. The
// whole plaintext is buffered first: AES-GCM cannot emit anything until it has
// every byte, and the size and SHA-256 reported to callers must describe the
// plaintext, not the envelope.
func (s *cryptStore) Store(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*registryfilestore.StoreResult, error) {
	hasher := sha256.New()
	limited := io.TeeReader(io.LimitReader(data, maxSize+1), hasher)

	var plain bytes.Buffer
	n, err := io.Copy(&plain, limited)
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", maxSize)
	}

	sealed, err := s.seal(plain.Bytes())
	if err != nil {
		return nil, err
	}

	result, err := s.inner.Store(ctx, sealed, int64(sealed.Len()), contentType)
	if err != nil {
		return nil, err
	}
	result.Size = n
	result.SHA256 = fmt.Sprintf("%x", hasher.Sum(nil))
	return result, nil
}

// seal encrypts plaintext into a fresh buffer: ASE1 header first, then the
// GCM ciphertext and tag flushed by Close.
func (s *cryptStore) seal(plaintext []byte) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w, err := s.svc.EncryptStream(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// Retrieve opens the stored envelope and streams plaintext.
func (s *cryptStore) Retrieve(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	rc, err := s.inner.Retrieve(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	plain, err := s.svc.DecryptStream(rc)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	return &decryptedBlob{Reader: plain, raw: rc}, nil
}

func (s *cryptStore) Delete(ctx context.Context, storageKey string) error {
	return s.inner.Delete(ctx, storageKey)
}

// GetSignedURL returns nil: a signed URL to the inner store would serve
// ciphertext, so encrypted downloads always stream through the service.
func (s *cryptStore) GetSignedURL(_ context.Context, _ string, _ time.Duration) (*url.URL, error) {
	return nil, nil
}

// decryptedBlob reads decrypted bytes while keeping the underlying storage
// stream alive until Close.
type decryptedBlob struct {
	io.Reader
	raw io.ReadCloser
}

func (d *decryptedBlob) Close() error { return d.raw.Close() }
