package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/errorsx"
	"github.com/buildngrowsv/bubblevoice/pkg/llm"
	"github.com/buildngrowsv/bubblevoice/pkg/resilience"
)

const defaultSystemPrompt = "You are a helpful voice assistant. Answer briefly; your reply will be spoken aloud."

type Adapter struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Client       *http.Client

	breaker *resilience.CircuitBreaker
}

func NewAdapter(apiKey, model string) *Adapter {
	return &Adapter{
		APIKey:       apiKey,
		Model:        model,
		BaseURL:      "https://api.openai.com/v1",
		SystemPrompt: defaultSystemPrompt,
		Client:       &http.Client{Timeout: 60 * time.Second},
		breaker:      resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) Generate(ctx context.Context, input llm.Request) (llm.Response, error) {
	if !a.breaker.Allow() {
		return llm.Response{}, errorsx.Wrap(errors.New("circuit open"), errorsx.ReasonLLMRateLimit)
	}
	body, err := a.buildRequest(input)
	if err != nil {
		return llm.Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/completions", body)
	if err != nil {
		return llm.Response{}, err
	}
	a.applyHeaders(req)
	resp, err := a.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Response{}, ctx.Err()
		}
		return llm.Response{}, errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		rl := resilience.RateLimitError{Provider: "openai", Message: string(raw)}
		a.breaker.OnError(rl)
		return llm.Response{}, errorsx.Wrap(rl, errorsx.ReasonLLMRateLimit)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return llm.Response{}, errorsx.Wrap(errors.New(string(raw)), errorsx.ReasonLLMGenerate)
	}
	var payload completionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return llm.Response{}, errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	a.breaker.OnSuccess()
	return payload.toResponse()
}

type completionPayload struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p completionPayload) toResponse() (llm.Response, error) {
	if len(p.Choices) == 0 {
		return llm.Response{}, errors.New("no choices")
	}
	first := p.Choices[0]
	return llm.Response{
		Text:         first.Message.Content,
		FinishReason: first.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     p.Usage.PromptTokens,
			CompletionTokens: p.Usage.CompletionTokens,
			TotalTokens:      p.Usage.TotalTokens,
		},
	}, nil
}

func (a *Adapter) buildRequest(input llm.Request) (*bytes.Buffer, error) {
	prompt := a.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	req := map[string]any{
		"model": a.Model,
		"messages": []map[string]any{
			{"role": "system", "content": prompt},
			{"role": "user", "content": input.Text},
		},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}

func (a *Adapter) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

var _ llm.Adapter = (*Adapter)(nil)
