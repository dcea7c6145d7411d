// Package kek holds the behavior shared by encryption providers that keep
// their data-encryption keys (DEKs) in the database, wrapped by an external
// key-encryption key such as Vault Transit or AWS KMS. The external service is
// consulted only when DEKs are loaded or rotated; request payloads are sealed
// locally with AES-256-GCM inside an ASE1 envelope.
package kek

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/envelope"
	"github.com/consulta/advisor-service/internal/plugin/encrypt/dekstore"
	"github.com/consulta/advisor-service/internal/plugin/encrypt/local"
	"github.com/consulta/advisor-service/internal/registry/encrypt"
)

// Wrapper is the piece each provider supplies: wrap a plaintext DEK for
// storage and unwrap a stored one. Implementations talk to the external KMS.
type Wrapper interface {
	Wrap(ctx context.Context, plaintext []byte) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// Provider implements encrypt.Provider on top of a Wrapper. DEKs are cached
// in memory after the first use; index 0 encrypts, later entries decrypt data
// written under rotated-out keys.
type Provider struct {
	id   string
	cfg  *config.Config
	kms  Wrapper

	boot    sync.Once
	bootErr error

	mu   sync.RWMutex
	deks [][]byte
}

// NewProvider builds a Provider whose envelope headers carry id and whose
// DEK row in encryption_deks is keyed by the same id.
func NewProvider(id string, cfg *config.Config, w Wrapper) *Provider {
	return &Provider{id: id, cfg: cfg, kms: w}
}

func (p *Provider) ID() string { return p.id }

// ensureReady loads and unwraps the DEKs on first use. The result is sticky:
// a failed load keeps failing until the process restarts, matching how the
// other providers surface misconfiguration.
func (p *Provider) ensureReady() error {
	p.boot.Do(func() {
		deks, err := p.fetchDEKs(context.Background(), true)
		if err != nil {
			p.bootErr = err
			return
		}
		p.install(deks)
	})
	return p.bootErr
}

// fetchDEKs reads this provider's row from encryption_deks and unwraps every
// stored DEK, newest first. When bootstrap is set and no row exists yet, a
// fresh 32-byte DEK is generated, wrapped, and inserted; the insert uses
// ON CONFLICT DO NOTHING, so if a sibling instance races us we re-read and
// adopt whichever DEK won.
func (p *Provider) fetchDEKs(ctx context.Context, bootstrap bool) ([][]byte, error) {
	store, err := dekstore.New(p.cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rec, err := store.Load(ctx, p.id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if !bootstrap {
			return nil, nil
		}
		if rec, err = p.bootstrapDEK(ctx, store); err != nil {
			return nil, err
		}
	}

	deks := make([][]byte, 0, len(rec.WrappedDEKs))
	for _, w := range rec.WrappedDEKs {
		dek, err := p.kms.Unwrap(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("%s: unwrapping stored DEK: %w", p.id, err)
		}
		deks = append(deks, dek)
	}
	return deks, nil
}

func (p *Provider) bootstrapDEK(ctx context.Context, store dekstore.Store) (*dekstore.Record, error) {
	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("%s: generating DEK: %w", p.id, err)
	}
	wrapped, err := p.kms.Wrap(ctx, dek)
	if err != nil {
		return nil, fmt.Errorf("%s: wrapping new DEK: %w", p.id, err)
	}
	if err := store.Bootstrap(ctx, p.id, wrapped); err != nil {
		return nil, err
	}
	rec, err := store.Load(ctx, p.id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: DEK row missing after bootstrap", p.id)
	}
	return rec, nil
}

func (p *Provider) install(deks [][]byte) {
	p.mu.Lock()
	p.deks = deks
	p.mu.Unlock()
}

// primary returns the encrypting DEK. ensureReady either cached at least one
// DEK or reported an error, so index 0 is always present here.
func (p *Provider) primary() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deks[0]
}

func (p *Provider) snapshot() [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([][]byte, len(p.deks))
	copy(out, p.deks)
	return out
}

// Encrypt seals plaintext with the primary DEK and prepends the ASE1 header.
func (p *Provider) Encrypt(plaintext []byte) ([]byte, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	iv, sealed, err := local.AESGCMSeal(p.primary(), plaintext)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := p.writeEnvelope(&buf, iv); err != nil {
		return nil, err
	}
	buf.Write(sealed)
	return buf.Bytes(), nil
}

// Decrypt opens ASE1-wrapped ciphertext, trying the primary DEK first and
// then any legacy DEKs.
func (p *Provider) Decrypt(ciphertext []byte) ([]byte, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	if !envelope.HasMagic(ciphertext) {
		return nil, fmt.Errorf("%s: expected ASE1 envelope", p.id)
	}
	r := bytes.NewReader(ciphertext)
	h, _, err := envelope.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: reading ciphertext: %w", p.id, err)
	}
	return p.open(h.Nonce, payload)
}

// EncryptStream writes the ASE1 header to dst up front, then hands back a
// WriteCloser that seals the buffered plaintext on Close. GCM needs the whole
// message before it can emit the tag, so the buffering is inherent.
func (p *Provider) EncryptStream(dst io.Writer) (io.WriteCloser, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%s: generating nonce: %w", p.id, err)
	}
	if err := p.writeEnvelope(dst, iv); err != nil {
		return nil, err
	}
	return local.NewGCMEncryptWriter(dst, p.primary(), iv), nil
}

// DecryptStream opens a ciphertext stream whose ASE1 header was already
// consumed by the caller.
func (p *Provider) DecryptStream(src io.Reader, header *encrypt.Header) (io.Reader, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("%s: DecryptStream requires a parsed ASE1 header", p.id)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%s: reading ciphertext stream: %w", p.id, err)
	}
	plain, err := p.open(header.Nonce, data)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(plain), nil
}

func (p *Provider) writeEnvelope(dst io.Writer, iv []byte) error {
	return envelope.WriteHeader(dst, envelope.Header{
		Version:    1,
		ProviderID: p.id,
		Nonce:      iv,
	})
}

// open tries every cached DEK against the payload. When all fail it reloads
// the DEK row once, so an instance that missed a rotation picks up the new
// primary without a restart.
func (p *Provider) open(iv, payload []byte) ([]byte, error) {
	if plain, err := openAny(iv, payload, p.snapshot()); err == nil {
		return plain, nil
	}
	if err := p.refresh(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: decryption failed and DEK refresh failed too: %w", p.id, err)
	}
	plain, err := openAny(iv, payload, p.snapshot())
	if err != nil {
		return nil, fmt.Errorf("%s: decryption failed with every DEK, even after refresh: %w", p.id, err)
	}
	return plain, nil
}

// refresh re-reads the DEK row without bootstrapping. An empty result leaves
// the cache alone rather than wiping keys that still decrypt old data.
func (p *Provider) refresh(ctx context.Context) error {
	deks, err := p.fetchDEKs(ctx, false)
	if err != nil {
		return err
	}
	if len(deks) > 0 {
		p.install(deks)
	}
	return nil
}

func openAny(iv, payload []byte, deks [][]byte) ([]byte, error) {
	var lastErr error
	for _, dek := range deks {
		plain, err := local.AESGCMOpen(dek, iv, payload)
		if err == nil {
			return plain, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no DEKs available")
	}
	return nil, lastErr
}
