package envelope

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/registry/encrypt"
)

// Service fronts the configured encryption providers. New data is sealed by
// the primary provider; reads are routed to whichever provider's ID the ASE1
// header names, so rotated-out providers keep decrypting their old envelopes.
type Service struct {
	primary encrypt.Provider
	byID    map[string]encrypt.Provider
}

// New loads every provider named in cfg.EncryptionProviders, in order. The
// first becomes the primary. Listing "plain" after a real provider is the
// migration setup: unsealed rows written before encryption was enabled fall
// through to it instead of failing the primary's envelope check.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	svc := &Service{byID: map[string]encrypt.Provider{}}
	for _, name := range strings.Split(cfg.EncryptionProviders, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		plugin, err := encrypt.Select(name)
		if err != nil {
			return nil, err
		}
		provider, err := plugin.Loader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("encryption provider %q: %w", name, err)
		}
		svc.byID[provider.ID()] = provider
		if svc.primary == nil {
			svc.primary = provider
		}
	}
	if svc.primary == nil {
		return nil, fmt.Errorf("ADVISOR_SERVICE_ENCRYPTION_PROVIDERS names no providers")
	}
	return svc, nil
}

// IsPrimaryReal reports whether the primary provider actually seals data,
// as opposed to the "plain" passthrough.
func (s *Service) IsPrimaryReal() bool {
	return s.primary.ID() != "plain"
}

// EncryptStream seals writes through the primary provider.
func (s *Service) EncryptStream(dst io.Writer) (io.WriteCloser, error) {
	return s.primary.EncryptStream(dst)
}

// DecryptStream sniffs the first four bytes of src for the ASE1 magic and
// routes the stream to the provider its header names. Streams without the
// magic pass to the "plain" provider when one is registered (pre-encryption
// data), otherwise to the primary.
//
// Plain data can also open with the magic bytes by coincidence. If the rest
// of the header then fails to parse and "plain" is registered, the stream is
// reassembled from the bytes the parse consumed and handed over unmodified.
func (s *Service) DecryptStream(src io.Reader) (io.Reader, error) {
	head := make([]byte, 4)
	n, _ := io.ReadFull(src, head)
	stream := io.MultiReader(bytes.NewReader(head[:n]), src)

	if !HasMagic(head[:n]) {
		return s.passthrough(stream)
	}

	rec := &replayReader{src: stream}
	h, _, err := ReadHeader(rec)
	if err != nil || h == nil {
		if plain := s.byID["plain"]; plain != nil {
			return plain.DecryptStream(rec.restore(stream), nil)
		}
		if err == nil {
			err = fmt.Errorf("envelope: malformed ASE1 header")
		}
		return nil, err
	}

	provider, ok := s.byID[h.ProviderID]
	if !ok {
		return nil, fmt.Errorf("envelope: unknown provider %q in ASE1 header", h.ProviderID)
	}
	// rec consumed exactly the header, leaving stream at the ciphertext.
	return provider.DecryptStream(stream, &encrypt.Header{
		Version:    h.Version,
		ProviderID: h.ProviderID,
		Nonce:      h.Nonce,
	})
}

func (s *Service) passthrough(stream io.Reader) (io.Reader, error) {
	if plain := s.byID["plain"]; plain != nil {
		return plain.DecryptStream(stream, nil)
	}
	return s.primary.DecryptStream(stream, nil)
}

// replayReader remembers everything read through it so a failed header parse
// can put the stream back together.
type replayReader struct {
	src      io.Reader
	consumed []byte
}

func (r *replayReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	r.consumed = append(r.consumed, p[:n]...)
	return n, err
}

func (r *replayReader) restore(tail io.Reader) io.Reader {
	return io.MultiReader(bytes.NewReader(r.consumed), tail)
}
