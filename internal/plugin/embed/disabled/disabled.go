// Package disabled provides the "none" embedder, the default when no
// embedding provider is configured. Semantic indexing stays off and any
// attempt to embed reports a clear error instead of a nil deref.
package disabled

import (
	"context"
	"errors"

	"github.com/consulta/advisor-service/internal/registry/embed"
)

// ErrDisabled is returned by EmbedTexts when no provider is configured.
var ErrDisabled = errors.New("embedding is disabled")

type noneEmbedder struct{}

var _ embed.Embedder = noneEmbedder{}

func (noneEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return nil, ErrDisabled
}

func (noneEmbedder) ModelName() string { return "none" }
func (noneEmbedder) Dimension() int    { return 0 }

func init() {
	embed.Register(embed.Plugin{
		Name: "none",
		Loader: func(context.Context) (embed.Embedder, error) {
			return noneEmbedder{}, nil
		},
	})
}
