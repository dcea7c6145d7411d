// Package dbstore registers the "db" file store backend. Blobs are stored as
// single rows in the file_blobs table, keyed by a generated storage key that is
// independent of the file metadata row.
package dbstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/consulta/advisor-service/internal/config"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
)

func init() {
	registryfilestore.Register(registryfilestore.Plugin{
		Name:   "db",
		Loader: load,
	})
}

func load(ctx context.Context) (registryfilestore.FileStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("dbstore: missing config in context")
	}
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("dbstore: %w", err)
	}
	// The schema migrator also creates file_blobs; AutoMigrate keeps the file
	// store usable against a database where migrations have not run yet.
	if err := db.AutoMigrate(&fileBlobRecord{}); err != nil {
		return nil, fmt.Errorf("dbstore: auto-migrate file_blobs: %w", err)
	}
	return &DBFileStore{db: db}, nil
}

type DBFileStore struct {
	db *gorm.DB
}

var _ registryfilestore.FileStore = (*DBFileStore)(nil)

type fileBlobRecord struct {
	StorageKey string    `gorm:"column:storage_key;type:uuid;primaryKey"`
	Data       []byte    `gorm:"column:data;type:bytea;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (fileBlobRecord) TableName() string { return "file_blobs" }

// Store buffers the upload (enforcing maxSize and computing the SHA-256 on the
// way through) and writes it as one file_blobs row.
func (s *DBFileStore) Store(ctx context.Context, data io.Reader, maxSize int64, _ string) (*registryfilestore.StoreResult, error) {
	hasher := sha256.New()
	limited := io.LimitReader(data, maxSize+1)

	var buf bytes.Buffer
	total, err := io.Copy(io.MultiWriter(&buf, hasher), limited)
	if err != nil {
		return nil, fmt.Errorf("dbstore: buffer upload: %w", err)
	}
	if total > maxSize {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", maxSize)
	}

	storageKey := uuid.New().String()
	rec := fileBlobRecord{StorageKey: storageKey, Data: buf.Bytes()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("dbstore: insert blob: %w", err)
	}

	return &registryfilestore.StoreResult{
		StorageKey: storageKey,
		Size:       total,
		SHA256:     fmt.Sprintf("%x", hasher.Sum(nil)),
	}, nil
}

func (s *DBFileStore) Retrieve(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	var rec fileBlobRecord
	result := s.db.WithContext(ctx).Where("storage_key = ?", storageKey).Limit(1).Find(&rec)
	if result.Error != nil {
		return nil, fmt.Errorf("dbstore: read blob: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("file not found: %s", storageKey)
	}
	return io.NopCloser(bytes.NewReader(rec.Data)), nil
}

func (s *DBFileStore) Delete(ctx context.Context, storageKey string) error {
	return s.db.WithContext(ctx).Where("storage_key = ?", storageKey).Delete(&fileBlobRecord{}).Error
}

// GetSignedURL returns nil: database blobs have no directly reachable URL, so
// downloads stream through the service under session auth.
func (s *DBFileStore) GetSignedURL(_ context.Context, _ string, _ time.Duration) (*url.URL, error) {
	return nil, nil
}
