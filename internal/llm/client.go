// Package llm talks to an OpenRouter-compatible chat completions API and
// assembles the advisor system prompts. The base URL is configurable so tests
// can point the client at a local mock server.
package llm

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
	"github.com/consulta/advisor-service/internal/security"
)

// Message is a single chat turn in provider wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls the chat completions endpoint. Build one with New.
type Client struct {
	apiKey   string
	model    string
	baseURL  string
	referer  string
	appTitle string
	http     *http.Client
}

func New(cfg *config.Config) *Client {
	return &Client{
		apiKey:   cfg.CompletionAPIKey,
		model:    cfg.CompletionModel,
		baseURL:  strings.TrimRight(cfg.CompletionBaseURL, "/"),
		referer:  cfg.CompletionReferer,
		appTitle: cfg.CompletionAppTitle,
		http:     &http.Client{Timeout: cfg.CompletionTimeout},
	}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the message list and returns the assistant reply text. An
// empty reply is reported as an error so callers never persist blanks.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	content, err := c.complete(ctx, messages)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if security.CompletionRequestsTotal != nil {
		security.CompletionRequestsTotal.WithLabelValues(outcome).Inc()
	}
	if security.CompletionLatency != nil {
		security.CompletionLatency.Observe(time.Since(start).Seconds())
	}
	return content, err
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	reqBody, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	// OpenRouter attribution headers, both optional.
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.appTitle != "" {
		req.Header.Set("X-Title", c.appTitle)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("completion: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion request failed: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("completion: parse response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("completion error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	content := result.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty completion response")
	}
	return content, nil
}
