// Package openai embeds message text through an OpenAI-compatible
// /embeddings endpoint. The base URL is configurable, so any provider that
// speaks the same wire format works here too.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/consulta/advisor-service/internal/config"
	registryembed "github.com/consulta/advisor-service/internal/registry/embed"
)

const requestTimeout = 60 * time.Second

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

type apiEmbedder struct {
	apiKey string
	model  string
	base   string
	// requestDim goes on the wire when positive; reportedDim is what
	// Dimension() advertises to the vector store migrators.
	requestDim  int
	reportedDim int
	http        *http.Client
}

var _ registryembed.Embedder = (*apiEmbedder)(nil)

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.EmbedAPIKey == "" {
		return nil, fmt.Errorf("openai embedder: ADVISOR_SERVICE_EMBEDDING_API_KEY is required")
	}
	reported := cfg.EmbedDimensions
	if reported <= 0 && strings.EqualFold(cfg.EmbedModelName, "text-embedding-3-small") {
		reported = 1536
	}
	return &apiEmbedder{
		apiKey:      cfg.EmbedAPIKey,
		model:       cfg.EmbedModelName,
		base:        strings.TrimRight(cfg.EmbedBaseURL, "/"),
		requestDim:  cfg.EmbedDimensions,
		reportedDim: reported,
		http:        &http.Client{Timeout: requestTimeout},
	}, nil
}

func (e *apiEmbedder) ModelName() string { return e.model }
func (e *apiEmbedder) Dimension() int    { return e.reportedDim }

// embedCall and embedReply mirror the OpenAI embeddings wire format.
type embedCall struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type embedReply struct {
	Data  []embedDatum `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type embedDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func (e *apiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	call := embedCall{Input: texts, Model: e.model}
	if e.requestDim > 0 {
		call.Dimensions = &e.requestDim
	}
	status, body, err := e.post(ctx, call)
	if err != nil {
		return nil, err
	}
	return decodeReply(status, body, len(texts))
}

func (e *apiEmbedder) post(ctx context.Context, call embedCall) (string, []byte, error) {
	payload, err := json.Marshal(call)
	if err != nil {
		return "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("embed: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.Status, body, nil
	}
	return "", body, nil
}

// decodeReply parses the response body and reassembles the vectors in input
// order; the API may return them in any order, keyed by index.
func decodeReply(status string, body []byte, want int) ([][]float32, error) {
	var reply embedReply
	if err := json.Unmarshal(body, &reply); err != nil {
		if status != "" {
			return nil, fmt.Errorf("embed request failed: %s - %s", status, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("embed: parse response: %w", err)
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("embed error: %s", reply.Error.Message)
	}
	if got := len(reply.Data); got != want {
		return nil, fmt.Errorf("embed: expected %d embeddings, got %d", want, got)
	}

	vectors := make([][]float32, want)
	for _, d := range reply.Data {
		if d.Index < 0 || d.Index >= want {
			return nil, fmt.Errorf("embed: index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
