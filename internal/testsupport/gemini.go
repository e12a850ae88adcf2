package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// GeminiStub is a fake generateContent endpoint. Structured requests are
// answered by the reply registered under the first response schema property
// found in the order final_decision, key_points, action_items, summary; plain
// text requests use the "" reply.
type GeminiStub struct {
	*httptest.Server

	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
}

var stubReplyKeys = []string{"final_decision", "key_points", "action_items", "summary"}

// NewGeminiStub starts a stub server and registers its shutdown.
func NewGeminiStub(t testing.TB, replies map[string]string) *GeminiStub {
	t.Helper()

	stub := &GeminiStub{replies: replies, calls: map[string]int{}}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(stub.Close)
	return stub
}

// Calls returns how many requests were answered with the reply under key.
func (s *GeminiStub) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *GeminiStub) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"models/stub"}`))
		return
	}
	if !strings.HasSuffix(r.URL.Path, ":generateContent") {
		http.NotFound(w, r)
		return
	}
	var body struct {
		GenerationConfig struct {
			ResponseSchema struct {
				Properties map[string]any `json:"properties"`
			} `json:"responseSchema"`
		} `json:"generationConfig"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := ""
	for _, candidate := range stubReplyKeys {
		if _, ok := body.GenerationConfig.ResponseSchema.Properties[candidate]; ok {
			key = candidate
			break
		}
	}

	s.mu.Lock()
	s.calls[key]++
	reply, ok := s.replies[key]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"no stub reply","status":"INVALID_ARGUMENT"}}`))
		return
	}

	resp := map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]string{{"text": reply}}},
			"finishReason": "STOP",
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
