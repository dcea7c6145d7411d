// Package local provides a deterministic, dependency-free embedder: each
// text becomes an L2-normalized bag-of-words vector with token positions
// chosen by hashing. Useful for tests and air-gapped deploys; the vectors
// capture word overlap only, not meaning.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	registryembed "github.com/consulta/advisor-service/internal/registry/embed"
)

// Dimension matches all-minilm-l6-v2 so a later switch to a real model of
// that family does not force a vector store migration.
const (
	modelName = "all-minilm-l6-v2"
	dimension = 384
)

type localEmbedder struct{}

var _ registryembed.Embedder = localEmbedder{}

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "local",
		Loader: func(_ context.Context) (registryembed.Embedder, error) {
			return localEmbedder{}, nil
		},
	})
}

func (localEmbedder) ModelName() string { return modelName }
func (localEmbedder) Dimension() int    { return dimension }

func (localEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashEmbed(text)
	}
	return out, nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, dimension)
	for _, tok := range splitWords(text) {
		vec[bucketOf(tok)]++
	}
	return l2Normalize(vec)
}

// bucketOf maps a token to a vector index via FNV-64a, so the same word
// always lands in the same slot.
func bucketOf(token string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum64() % uint64(dimension))
}

func splitWords(text string) []string {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func l2Normalize(vec []float32) []float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / float32(math.Sqrt(float64(sum)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
