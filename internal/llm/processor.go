package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Options carries the generation defaults applied to every request.
type Options struct {
	MaxTokens   int
	Temperature float64
	KeepAlive   string
	Timeout     time.Duration
}

// Processor rewrites transcriptions with one loaded language model at a time.
type Processor struct {
	gen    Generator
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	loaded *ModelConfig
}

func NewProcessor(gen Generator, opts Options, logger *slog.Logger) *Processor {
	return &Processor{gen: gen, opts: opts, logger: logger.With(slog.String("component", "language-processor"))}
}

// LoadModel validates cfg and warms the model when the backend supports it.
func (p *Processor) LoadModel(ctx context.Context, cfg ModelConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return ErrMissingModel
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return ErrMissingPrompt
	}
	start := time.Now()
	if lc, ok := p.gen.(Lifecycle); ok {
		if err := lc.Warm(ctx, cfg.Name, p.opts.KeepAlive); err != nil {
			return fmt.Errorf("load language model %s: %w", cfg.Name, err)
		}
	}
	p.mu.Lock()
	p.loaded = &cfg
	p.mu.Unlock()
	p.logger.Info("language model loaded", slog.String("model", cfg.Name), slog.Duration("latency", time.Since(start)))
	return nil
}

// Process rewrites text. onPartial, when set, receives the accumulated output
// after every streamed chunk.
func (p *Processor) Process(ctx context.Context, text string, onPartial func(string)) (string, error) {
	p.mu.Lock()
	cfg := p.loaded
	p.mu.Unlock()
	if cfg == nil {
		return "", ErrModelNotLoaded
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	req := Request{
		Model:       cfg.Name,
		Prompt:      text,
		System:      BuildSystemPrompt(*cfg),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
		KeepAlive:   p.opts.KeepAlive,
	}
	p.logger.Debug("generating", slog.String("model", cfg.Name), slog.String("system", req.System))

	var accumulated strings.Builder
	var last Chunk
	err := p.gen.Generate(ctx, req, func(chunk Chunk) error {
		last = chunk
		if chunk.Content == "" {
			return nil
		}
		accumulated.WriteString(chunk.Content)
		if onPartial != nil {
			onPartial(accumulated.String())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", cfg.Name, err)
	}
	p.logger.Info("generation complete",
		slog.String("model", cfg.Name),
		slog.Int("prompt_tokens", last.PromptTokens),
		slog.Int("completion_tokens", last.CompletionTokens),
		slog.Duration("latency", last.Latency))
	return PostProcess(accumulated.String()), nil
}

// UnloadModel forgets the loaded model and asks the backend to evict it.
func (p *Processor) UnloadModel(ctx context.Context) error {
	p.mu.Lock()
	cfg := p.loaded
	p.loaded = nil
	p.mu.Unlock()
	if cfg == nil {
		return nil
	}
	if lc, ok := p.gen.(Lifecycle); ok {
		if err := lc.Release(ctx, cfg.Name); err != nil {
			return fmt.Errorf("unload language model %s: %w", cfg.Name, err)
		}
	}
	p.logger.Info("language model unloaded", slog.String("model", cfg.Name))
	return nil
}

// Use loads cfg, runs fn and always unloads afterwards.
func (p *Processor) Use(ctx context.Context, cfg ModelConfig, fn func() error) error {
	if err := p.LoadModel(ctx, cfg); err != nil {
		return err
	}
	defer func() {
		if err := p.UnloadModel(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("failed to unload language model", slogError(err))
		}
	}()
	return fn()
}

// Catalog returns the backend's model catalog, if it has one.
func (p *Processor) Catalog() (Catalog, bool) {
	c, ok := p.gen.(Catalog)
	return c, ok
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
