package perception

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/config"
)

func TestLMStudioComplete(t *testing.T) {
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  hello  "}},
			},
		})
	}))
	defer server.Close()

	c := NewLMStudioClient(LMStudioConfig{BaseURL: server.URL + "/v1", Model: "test-model", Timeout: 5 * time.Second})
	got, err := c.Complete(context.Background(), "ping")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want trimmed hello", got)
	}
	if gotBody.Model != "test-model" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}

func TestLMStudioRetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer server.Close()

	c := NewLMStudioClient(LMStudioConfig{BaseURL: server.URL, Timeout: 10 * time.Second})
	got, err := c.Complete(context.Background(), "ping")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q", got)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestLMStudioServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewLMStudioClient(LMStudioConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	if _, err := c.Complete(context.Background(), "ping"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "verdict"},
			},
		})
	}))
	defer server.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	got, err := c.CompleteWithSystem(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}
	if got != "verdict" {
		t.Errorf("got %q", got)
	}
}

func TestAnthropicRequiresKey(t *testing.T) {
	c := NewAnthropicClient(AnthropicConfig{Timeout: time.Second})
	if _, err := c.Complete(context.Background(), "ping"); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestAnthropicRateLimitErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: server.URL, Timeout: 60 * time.Second})
	_, err := c.Complete(context.Background(), "ping")
	if err == nil {
		t.Fatal("expected error")
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError in chain, got %v", err)
	}
	if rle.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v", rle.RetryAfter)
	}
}

func TestFactorySelectsProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "lmstudio"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, ok := client.(*LMStudioClient); !ok {
		t.Errorf("expected LMStudioClient, got %T", client)
	}

	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "k"
	client, err = NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, ok := client.(*AnthropicClient); !ok {
		t.Errorf("expected AnthropicClient, got %T", client)
	}

	cfg.LLM.Provider = "nonsense"
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRateLimitErrorMessage(t *testing.T) {
	e := &RateLimitError{Provider: "lmstudio"}
	if e.Error() != "lmstudio rate limited" {
		t.Errorf("message = %q", e.Error())
	}
	e.RetryAfter = 3 * time.Second
	if e.Error() != "lmstudio rate limited, retry after 3s" {
		t.Errorf("message = %q", e.Error())
	}
}
