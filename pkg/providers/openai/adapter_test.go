package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildngrowsv/bubblevoice/pkg/errorsx"
	"github.com/buildngrowsv/bubblevoice/pkg/llm"
)

func TestGenerateParsesCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "it is sunny"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	a := NewAdapter("test-key", "gpt-4o-mini")
	a.BaseURL = srv.URL

	resp, err := a.Generate(context.Background(), llm.Request{Text: "what is the weather"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "it is sunny" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Fatalf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestGenerateRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	a := NewAdapter("test-key", "gpt-4o-mini")
	a.BaseURL = srv.URL

	_, err := a.Generate(context.Background(), llm.Request{Text: "hi"})
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonLLMRateLimit) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
}

func TestCircuitOpensAfterRepeatedRateLimits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAdapter("test-key", "gpt-4o-mini")
	a.BaseURL = srv.URL

	for i := 0; i < 3; i++ {
		_, _ = a.Generate(context.Background(), llm.Request{Text: "hi"})
	}
	// Breaker is now open; the request must fail without reaching the
	// server.
	srv.Close()
	_, err := a.Generate(context.Background(), llm.Request{Text: "hi"})
	if !errorsx.HasReason(err, errorsx.ReasonLLMRateLimit) {
		t.Fatalf("expected open-circuit rate limit error, got %v", err)
	}
}
