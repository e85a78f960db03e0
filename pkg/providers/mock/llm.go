package mock

import (
	"context"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/llm"
)

type LLMConfig struct {
	ResponseText string
	Latency      time.Duration
	Err          error
}

type LLMAdapter struct {
	cfg LLMConfig
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if a.cfg.Latency > 0 {
		select {
		case <-time.After(a.cfg.Latency):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	return llm.Response{
		Text:         a.cfg.ResponseText,
		FinishReason: "stop",
	}, nil
}

var _ llm.Adapter = (*LLMAdapter)(nil)
