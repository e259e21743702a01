package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fabfab/policynth/config"
)

func TestNewClientDefaults(t *testing.T) {
	cfg := config.Config{
		LLM: config.LLMConfig{
			Provider: config.ProviderOllama,
			Model:    "llama3.1:8b",
		},
		OllamaHost: "http://localhost:11434",
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected llm client, got error: %v", err)
	}
	if client == nil {
		t.Fatal("expected non-nil client")
	}
}

func TestNewClientRequiresAPIKeys(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic} {
		cfg := config.Config{LLM: config.LLMConfig{Provider: provider, Model: "m"}}
		if _, err := NewClient(cfg); err == nil {
			t.Fatalf("expected error for missing %s key", provider)
		}
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	cfg := config.Config{LLM: config.LLMConfig{Provider: "bard"}}
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewIntentClientUsesAnswerProviderByDefault(t *testing.T) {
	cfg := config.Config{
		LLM:       config.LLMConfig{Provider: config.ProviderOllama, Model: "big"},
		IntentLLM: config.LLMConfig{Model: "small"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 5, Burst: 2},
	}
	client, err := NewIntentClient(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*rateLimitedClient); !ok {
		t.Fatalf("expected rate limited client, got %T", client)
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Errorf("expected non-streaming request")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaChatMessage{Role: RoleAssistant, Content: "thirty days"}, Done: true})
	}))
	defer srv.Close()

	client := NewOllamaClient(Options{OllamaHost: srv.URL + "/", Model: "llama3"})
	answer, err := client.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "grace period?"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "thirty days" {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestOllamaErrorIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOllamaClient(Options{OllamaHost: srv.URL, Model: "missing"})
	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrGenerationRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestWithTimeoutClassifiesDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := WithTimeout(NewOllamaClient(Options{OllamaHost: srv.URL, Model: "slow"}), 50*time.Millisecond)
	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"covered"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(Options{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL, Model: "gpt-4o-mini"})
	answer, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "is it covered?"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "covered" {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var sawSystem atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["system"]; ok {
			sawSystem.Store(true)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"24 months"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(Options{AnthropicAPIKey: "k", Model: "claude"}, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	answer, err := client.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "policy analyst"},
		{Role: RoleUser, Content: "pre-existing waiting period?"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "24 months" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if !sawSystem.Load() {
		t.Fatal("expected system prompt to be sent separately")
	}
}

type countingClient struct {
	calls atomic.Int32
}

func (c *countingClient) Generate(ctx context.Context, messages []Message) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

var _ Client = (*countingClient)(nil)

func TestRateLimitedHonoursCancellation(t *testing.T) {
	inner := &countingClient{}
	client := NewRateLimited(inner, 0.001, 1)

	if _, err := client.Generate(context.Background(), nil); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Generate(ctx, nil); err == nil {
		t.Fatal("expected limiter error once the burst is spent")
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("expected one delegated call, got %d", got)
	}
}

func TestClassifyKeepsExistingCategory(t *testing.T) {
	err := classify("outer", classify("inner", context.DeadlineExceeded))
	if !errors.Is(err, ErrGenerationTimeout) || errors.Is(err, ErrGenerationRejected) {
		t.Fatalf("unexpected classification: %v", err)
	}
}
