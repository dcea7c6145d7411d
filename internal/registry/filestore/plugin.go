package filestore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"
)

// StoreResult is the result of a file store operation.
type StoreResult struct {
	StorageKey string
	Size       int64
	SHA256     string
}

// FileStore defines the interface for file blob backends. Metadata rows live
// in the relational store; a FileStore only moves bytes.
type FileStore interface {
	// Store writes file data and returns storage key, size, and SHA256.
	Store(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*StoreResult, error)
	// Retrieve returns a reader for the stored file.
	Retrieve(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// Delete removes the stored file.
	Delete(ctx context.Context, storageKey string) error
	// GetSignedURL returns a time-limited signed download URL, or nil when the
	// backend cannot sign URLs and the caller should stream the bytes itself.
	GetSignedURL(ctx context.Context, storageKey string, expiry time.Duration) (*url.URL, error)
}

// Loader creates a FileStore from config.
type Loader func(ctx context.Context) (FileStore, error)

// Plugin represents a file store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var byName = map[string]Plugin{}

// Register adds a file store plugin. Duplicate names panic.
func Register(p Plugin) {
	if _, taken := byName[p.Name]; taken {
		panic("file store plugin " + p.Name + " registered twice")
	}
	byName[p.Name] = p
}

// Names lists the registered file store plugins in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the loader for the named file store plugin.
func Select(name string) (Loader, error) {
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("no %q file store plugin (have: %s)", name, strings.Join(Names(), ", "))
	}
	return p.Loader, nil
}
