package bdd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// defaultAdvisorReply carries a title line so first messages get their
// conversation titled, same as a real provider reply would.
const defaultAdvisorReply = "TITLE: Business advice\n\nHere is my advice."

// AdvisorMessage is a single chat turn as sent to the completion provider.
type AdvisorMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AdvisorRequest is a recorded completion request.
type AdvisorRequest struct {
	Model    string           `json:"model"`
	Messages []AdvisorMessage `json:"messages"`
}

// MockAdvisor is a controllable mock completion provider for BDD tests.
// Scenarios change the canned reply, flip it into failure mode, and inspect
// the requests the chat routes sent.
type MockAdvisor struct {
	Server   *httptest.Server
	mu       sync.Mutex
	reply    string
	fail     bool
	requests []AdvisorRequest
}

// NewMockAdvisor creates a mock OpenRouter-compatible completions server.
func NewMockAdvisor(t *testing.T) *MockAdvisor {
	t.Helper()
	ma := &MockAdvisor{reply: defaultAdvisorReply}
	ma.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AdvisorRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		ma.mu.Lock()
		ma.requests = append(ma.requests, req)
		reply, fail := ma.reply, ma.fail
		ma.mu.Unlock()

		if fail {
			http.Error(w, `{"error":{"message":"provider down"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": reply}}},
		})
	}))
	t.Cleanup(ma.Server.Close)
	return ma
}

// SetReply changes the canned completion text.
func (m *MockAdvisor) SetReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
}

// SetFail toggles whether the mock returns success or an error response.
func (m *MockAdvisor) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Reset restores the default reply and clears the recorded requests.
// Called before each scenario so scenarios never see each other's traffic.
func (m *MockAdvisor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = defaultAdvisorReply
	m.fail = false
	m.requests = nil
}

// LastRequest returns the most recent completion request, or nil when the
// provider was never called.
func (m *MockAdvisor) LastRequest() *AdvisorRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}
