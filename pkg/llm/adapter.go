package llm

import "context"

// Request carries one finalized turn to the language model.
type Request struct {
	// Text is the turn's full accumulated text.
	Text string
	// FinalSegments are the recognizer-committed sentence fragments, in
	// order. Providers may use them for prompt shaping; Text is always the
	// authoritative content.
	FinalSegments []string
	TurnID        string
	SessionID     string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Adapter is the language-model collaborator. Generate must honor ctx
// cancellation promptly: an interrupt or session reset unblocks the
// decision path by cancelling the context, not by waiting for the call to
// finish naturally.
type Adapter interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}
