package bubblevoice

import (
	"fmt"
	"strings"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/playback"
	"github.com/buildngrowsv/bubblevoice/pkg/adapters/recognizer"
	"github.com/buildngrowsv/bubblevoice/pkg/llm"
)

// RecognizerFactory builds one recognizer per call. The epoch source is
// the call's session coordinator; the recognizer tags every transcript
// with its live value.
type RecognizerFactory func(callSID, streamID string, epochs recognizer.EpochSource) recognizer.StreamingRecognizer

type RecognizerFactoryBuilder func(cfg Config, traceID string) (RecognizerFactory, error)
type PlayerFactoryBuilder func(cfg Config) (func(callSID, streamID string) playback.Player, error)
type LLMFactory func(cfg Config) (llm.Adapter, error)

type ProviderRegistry struct {
	recognizers map[string]RecognizerFactoryBuilder
	players     map[string]PlayerFactoryBuilder
	llm         map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		recognizers: make(map[string]RecognizerFactoryBuilder),
		players:     make(map[string]PlayerFactoryBuilder),
		llm:         make(map[string]LLMFactory),
	}
}

func (r *ProviderRegistry) RegisterRecognizer(name string, factory RecognizerFactoryBuilder) {
	r.recognizers[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterPlayer(name string, factory PlayerFactoryBuilder) {
	r.players[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildRecognizerFactory(provider string, cfg Config, traceID string) (RecognizerFactory, error) {
	fn := r.recognizers[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("recognizer provider not registered: %s", provider)
	}
	return fn(cfg, traceID)
}

func (r *ProviderRegistry) BuildPlayerFactory(provider string, cfg Config) (func(callSID, streamID string) playback.Player, error) {
	fn := r.players[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("playback provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.Adapter, error) {
	fn := r.llm[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}
