package encrypt

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/consulta/advisor-service/internal/config"
)

// Provider seals and opens payloads. Every provider writes its own ASE1
// envelope when encrypting; the envelope service routes ciphertext back to it
// by the provider id in the header.
type Provider interface {
	// ID is the identifier written into the ASE1 header ("plain", "local", "vault", "kms").
	ID() string

	// Encrypt returns ASE1-wrapped ciphertext (the plain provider passes bytes through).
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens ciphertext produced by Encrypt.
	Decrypt(ciphertext []byte) ([]byte, error)

	// EncryptStream writes the ASE1 header to dst then returns a WriteCloser that
	// encrypts written bytes and flushes the GCM tag on Close.
	EncryptStream(dst io.Writer) (io.WriteCloser, error)

	// DecryptStream turns src into a plaintext reader. header carries the
	// envelope fields the caller already consumed from the stream.
	DecryptStream(src io.Reader, header *Header) (io.Reader, error)
}

// Header holds the parsed ASE1 envelope fields handed to DecryptStream.
// It lives here rather than in package envelope to avoid an import cycle.
type Header struct {
	Version    uint32
	ProviderID string
	Nonce      []byte
}

// Plugin pairs a provider name with its loader.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (Provider, error)
}

var byName = map[string]Plugin{}

// Register adds an encryption provider plugin. Duplicate names panic.
func Register(p Plugin) {
	if _, taken := byName[p.Name]; taken {
		panic("encryption provider " + p.Name + " registered twice")
	}
	byName[p.Name] = p
}

// Names lists the registered provider names in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the Plugin for the given provider name.
func Select(name string) (Plugin, error) {
	p, ok := byName[name]
	if !ok {
		return Plugin{}, fmt.Errorf("no %q encryption provider (have: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}
