package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var ErrModelNotLoaded = errors.New("stt: voice model not loaded")

// Transcriber owns at most one loaded voice model.
type Transcriber struct {
	engine Engine
	logger *slog.Logger

	mu    sync.Mutex
	model Model
	cfg   ModelConfig
}

func NewTranscriber(engine Engine, logger *slog.Logger) *Transcriber {
	return &Transcriber{engine: engine, logger: logger.With(slog.String("component", "transcriber"))}
}

// LoadModel loads cfg, replacing any model already loaded.
func (t *Transcriber) LoadModel(ctx context.Context, cfg ModelConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model != nil {
		if err := t.model.Close(); err != nil {
			t.logger.Warn("failed to release previous voice model", slogError(err))
		}
		t.model = nil
	}
	start := time.Now()
	model, err := t.engine.Load(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load voice model %s: %w", cfg.Name, err)
	}
	t.model = model
	t.cfg = cfg
	t.logger.Info("voice model loaded",
		slog.String("model", cfg.Name),
		slog.String("language", cfg.Language),
		slog.Duration("latency", time.Since(start)))
	return nil
}

// Transcribe converts the audio file to text and applies the configured
// text replacements.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	t.mu.Lock()
	model, cfg := t.model, t.cfg
	t.mu.Unlock()
	if model == nil {
		return "", ErrModelNotLoaded
	}
	start := time.Now()
	raw, err := model.Transcribe(ctx, audioPath)
	if err != nil {
		return "", err
	}
	text := ApplyReplacements(strings.TrimSpace(raw), cfg.Replacements)
	t.logger.Info("transcription complete", slog.Duration("latency", time.Since(start)), slog.Int("chars", len(text)))
	return text, nil
}

// UnloadModel releases the loaded model. It is safe to call when nothing is loaded.
func (t *Transcriber) UnloadModel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	t.logger.Info("voice model unloaded", slog.String("model", t.cfg.Name))
	return err
}

// Use loads cfg, runs fn and always unloads afterwards.
func (t *Transcriber) Use(ctx context.Context, cfg ModelConfig, fn func() error) error {
	if err := t.LoadModel(ctx, cfg); err != nil {
		return err
	}
	defer func() {
		if err := t.UnloadModel(); err != nil {
			t.logger.Warn("failed to unload voice model", slogError(err))
		}
	}()
	return fn()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
