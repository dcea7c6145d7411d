// Package local registers the "local" encryption provider: AES-256-GCM with
// keys taken straight from configuration, no external key service. The
// package also exports the GCM helpers the KEK-backed providers build on.
package local

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/envelope"
	"github.com/consulta/advisor-service/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "local",
		Loader: func(_ context.Context, cfg *config.Config) (encrypt.Provider, error) {
			// The key list is CSV: the first entry seals new data, the rest
			// only decrypt, which is how keys rotate out.
			keys, err := config.ParseEncryptionKeyList(cfg.EncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("local provider: %w", err)
			}
			if len(keys) == 0 {
				return nil, fmt.Errorf("local provider: ADVISOR_SERVICE_ENCRYPTION_KEY is required")
			}
			return &localProvider{keys: keys}, nil
		},
	})
}

// localProvider seals with keys[0] and opens with whichever key fits.
type localProvider struct {
	keys [][]byte
}

func (p *localProvider) ID() string { return "local" }

func (p *localProvider) Encrypt(plaintext []byte) ([]byte, error) {
	iv, sealed, err := AESGCMSeal(p.keys[0], plaintext)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeEnvelope(&buf, iv); err != nil {
		return nil, err
	}
	buf.Write(sealed)
	return buf.Bytes(), nil
}

func (p *localProvider) Decrypt(ciphertext []byte) ([]byte, error) {
	if !envelope.HasMagic(ciphertext) {
		return nil, fmt.Errorf("local: expected ASE1 envelope")
	}
	r := bytes.NewReader(ciphertext)
	h, _, err := envelope.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("local: reading ciphertext payload: %w", err)
	}
	return p.open(h.Nonce, payload)
}

// EncryptStream emits the ASE1 header right away so the receiver can begin
// streaming, then buffers plaintext until Close seals it. GCM cannot produce
// the tag before seeing the whole message, so the buffering is inherent.
func (p *localProvider) EncryptStream(dst io.Writer) (io.WriteCloser, error) {
	iv, err := newNonce()
	if err != nil {
		return nil, err
	}
	if err := writeEnvelope(dst, iv); err != nil {
		return nil, err
	}
	return NewGCMEncryptWriter(dst, p.keys[0], iv), nil
}

// DecryptStream opens src, which is already positioned past the ASE1 header.
func (p *localProvider) DecryptStream(src io.Reader, header *encrypt.Header) (io.Reader, error) {
	if header == nil {
		return nil, fmt.Errorf("local: DecryptStream requires a parsed ASE1 header")
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("local: reading ciphertext stream: %w", err)
	}
	plain, err := p.open(header.Nonce, data)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(plain), nil
}

// open tries each configured key in order, newest first.
func (p *localProvider) open(iv, payload []byte) ([]byte, error) {
	var lastErr error
	for _, key := range p.keys {
		plain, err := AESGCMOpen(key, iv, payload)
		if err == nil {
			return plain, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("local: decryption failed with all keys: %w", lastErr)
}

func writeEnvelope(dst io.Writer, iv []byte) error {
	return envelope.WriteHeader(dst, envelope.Header{
		Version:    1,
		ProviderID: "local",
		Nonce:      iv,
	})
}

func newNonce() ([]byte, error) {
	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("local: generating nonce: %w", err)
	}
	return iv, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("local: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("local: GCM: %w", err)
	}
	return gcm, nil
}

// AESGCMSeal encrypts plaintext under key with a fresh random nonce and
// returns both. Shared with the KEK-backed providers.
func AESGCMSeal(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	if iv, err = newNonce(); err != nil {
		return nil, nil, err
	}
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

// AESGCMOpen decrypts ciphertext (tag appended) under key and iv.
func AESGCMOpen(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("local: AES-GCM open: %w", err)
	}
	return plain, nil
}

// NewGCMEncryptWriter buffers plaintext and seals it to dst with key+iv on
// Close. The envelope header must already be on dst.
func NewGCMEncryptWriter(dst io.Writer, key, iv []byte) io.WriteCloser {
	return &sealWriter{dst: dst, key: key, iv: iv}
}

type sealWriter struct {
	dst    io.Writer
	key    []byte
	iv     []byte
	buf    bytes.Buffer
	sealed bool
}

func (w *sealWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Close seals the buffered plaintext and writes it out. Closing twice is
// fine; only the first call writes.
func (w *sealWriter) Close() error {
	if w.sealed {
		return nil
	}
	w.sealed = true
	gcm, err := newAEAD(w.key)
	if err != nil {
		return err
	}
	_, err = w.dst.Write(gcm.Seal(nil, w.iv, w.buf.Bytes(), nil))
	return err
}
