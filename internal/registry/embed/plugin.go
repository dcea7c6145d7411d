package embed

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Embedder turns message text into vectors for the semantic search index.
type Embedder interface {
	// EmbedTexts embeds each input text, returning vectors in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName identifies the embedding model, recorded alongside each vector.
	ModelName() string
	// Dimension is the vector width this embedder produces.
	Dimension() int
}

// Loader builds an Embedder from the config carried in ctx.
type Loader func(ctx context.Context) (Embedder, error)

// Plugin bundles an embedder name with its loader.
type Plugin struct {
	Name   string
	Loader Loader
}

var byName = map[string]Plugin{}

// Register adds an embedder plugin. Duplicate names panic.
func Register(p Plugin) {
	if _, taken := byName[p.Name]; taken {
		panic("embedder plugin " + p.Name + " registered twice")
	}
	byName[p.Name] = p
}

// Names lists the registered embedder plugins in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select returns the loader registered under name.
func Select(name string) (Loader, error) {
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("no %q embedder plugin (have: %s)", name, strings.Join(Names(), ", "))
	}
	return p.Loader, nil
}
