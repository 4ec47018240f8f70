package llm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ReylordDev/LocalFlow/internal/config"
)

// NewGenerator builds the backend selected by cfg.Mode.
func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(cfg.DefaultModel), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, &http.Client{Timeout: timeout}), nil
	case "openai":
		return NewOpenAIGenerator(cfg.APIKey, cfg.Endpoint, timeout), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

// OptionsFromConfig builds generation defaults from config.
func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		KeepAlive:   cfg.KeepAlive,
		Timeout:     time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
}

// RequiresBackend reports whether startup should fail when the backend is
// unreachable.
func RequiresBackend(cfg config.LLMConfig) bool {
	return cfg.RequireBackend && (cfg.Mode == "ollama" || cfg.Mode == "openai")
}
