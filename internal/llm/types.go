package llm

import (
	"context"
	"errors"
	"time"
)

var (
	ErrModelNotLoaded = errors.New("llm: language model not loaded")
	ErrMissingModel   = errors.New("llm: no language model configured")
	ErrMissingPrompt  = errors.New("llm: no prompt configured")
	ErrBackendOffline = errors.New("llm: backend offline")
)

// Request describes a language model prompt.
type Request struct {
	Model       string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	KeepAlive   string
}

// Chunk represents streamed model output.
type Chunk struct {
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// Catalog is implemented by backends that can report reachability and the
// models they serve.
type Catalog interface {
	Ping(ctx context.Context) error
	ListModels(ctx context.Context) ([]string, error)
}

// Lifecycle is implemented by backends that keep models resident between
// requests.
type Lifecycle interface {
	Warm(ctx context.Context, model, keepAlive string) error
	Release(ctx context.Context, model string) error
}
