package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ReylordDev/LocalFlow/internal/llm"
	"github.com/ReylordDev/LocalFlow/internal/protocol"
	"github.com/ReylordDev/LocalFlow/internal/store"
	"github.com/ReylordDev/LocalFlow/internal/stt"
)

// Workflow outcomes recorded on the runs counter.
const (
	outcomeResult  = "result"
	outcomeError   = "error"
	outcomeEmpty   = "empty"
	outcomeAborted = "aborted"
)

// runWorkflow turns the current recording into a persisted result. It runs to
// completion on the caller's goroutine; inbound messages queue behind it.
func (c *Controller) runWorkflow(ctx context.Context) {
	ctx, span := c.telemetry.tracer.Start(ctx, "session.workflow")
	defer span.End()

	outcome := c.workflow(ctx)
	span.SetAttributes(attribute.String("outcome", outcome))
	c.telemetry.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	c.run = runContext{}
}

func (c *Controller) workflow(ctx context.Context) string {
	start := c.clock()
	mode := c.run.mode
	if mode == nil {
		if err := c.recorder.Interrupt(); err != nil {
			c.logger.Warn("interrupt recording failed", slogError(err))
		}
		c.emitError(store.ErrNoActiveMode)
		c.toStatus(StatusIdle)
		return outcomeAborted
	}

	var wavPath string
	if err := c.telemetry.stage(ctx, "stop_capture", func(context.Context) error {
		var err error
		wavPath, err = c.recorder.Stop()
		return err
	}); err != nil {
		c.emitError(fmt.Errorf("stop recording: %w", err))
		c.toStatus(StatusIdle)
		return outcomeAborted
	}
	c.sink.Emit(protocol.AudioLevelUpdate{AudioLevel: 0})
	if wavPath == "" {
		c.logger.Info("recording produced no audio")
		c.toStatus(StatusIdle)
		return outcomeEmpty
	}
	defer c.compressor.Cleanup()

	c.toStatus(StatusCompressing)
	var compressed string
	if err := c.telemetry.stage(ctx, "compress", func(ctx context.Context) error {
		var err error
		compressed, err = c.compressor.Compress(ctx, wavPath)
		return err
	}); err != nil {
		c.emitError(fmt.Errorf("compress recording: %w", err))
		c.toStatus(StatusIdle)
		return outcomeError
	}

	voiceCfg, err := c.voiceConfig(ctx, *mode)
	if err != nil {
		c.emitError(err)
		c.toStatus(StatusIdle)
		return outcomeError
	}

	c.toStatus(StatusLoadingVoiceModel)
	var transcription string
	err = c.telemetry.stage(ctx, "transcribe", func(ctx context.Context) error {
		return c.transcriber.Use(ctx, voiceCfg, func() error {
			c.toStatus(StatusTranscribing)
			var err error
			transcription, err = c.transcriber.Transcribe(ctx, compressed)
			return err
		})
	})
	if err != nil {
		c.emitError(fmt.Errorf("transcribe: %w", err))
		c.toStatus(StatusIdle)
		return outcomeError
	}
	if transcription == "" {
		c.logger.Info("transcription is empty", slog.String("mode", mode.Name))
		c.toStatus(StatusIdle)
		return outcomeEmpty
	}
	c.sink.Emit(protocol.Transcription{Transcription: transcription})

	final := StatusResult
	var aiResult *string
	if mode.UseLanguageModel {
		text, err := c.generate(ctx, *mode, transcription)
		if err != nil {
			c.emitError(fmt.Errorf("language model: %w", err))
			final = StatusError
		} else {
			aiResult = &text
		}
	}

	c.toStatus(StatusSaving)
	modeID := mode.ID
	result := store.Result{
		ID:             uuid.New(),
		CreatedAt:      c.clock(),
		Transcription:  transcription,
		AIResult:       aiResult,
		Duration:       c.recorder.Duration(),
		ProcessingTime: c.clock().Sub(start),
		ModeID:         &modeID,
		Mode:           mode,
	}
	err = c.telemetry.stage(ctx, "save", func(ctx context.Context) error {
		var err error
		result, err = c.store.SaveResult(ctx, result, artifacts(wavPath, compressed))
		return err
	})
	if err != nil {
		c.emitError(fmt.Errorf("save result: %w", err))
		c.toStatus(StatusIdle)
		return outcomeError
	}

	c.toStatus(final)
	c.sink.Emit(protocol.ResultUpdate{Result: result})
	c.logger.Info("workflow complete",
		slog.String("result_id", result.ID.String()),
		slog.String("mode", mode.Name),
		slog.Duration("processing_time", result.ProcessingTime),
		slog.Bool("ai_result", aiResult != nil))
	if final == StatusError {
		return outcomeError
	}
	return outcomeResult
}

// voiceConfig merges global replacements with the mode's own, globals first.
func (c *Controller) voiceConfig(ctx context.Context, mode store.Mode) (stt.ModelConfig, error) {
	global, err := c.store.GlobalTextReplacements(ctx)
	if err != nil {
		return stt.ModelConfig{}, fmt.Errorf("load text replacements: %w", err)
	}
	replacements := make([]stt.Replacement, 0, len(global)+len(mode.TextReplacements))
	for _, set := range [][]store.TextReplacement{global, mode.TextReplacements} {
		for _, r := range set {
			replacements = append(replacements, stt.Replacement{Original: r.OriginalText, Replacement: r.ReplacementText})
		}
	}
	return stt.ModelConfig{
		Name:         mode.VoiceModel.Name,
		Language:     mode.VoiceLanguage,
		Translate:    mode.TranslateToEnglish,
		Replacements: replacements,
	}, nil
}

func (c *Controller) generate(ctx context.Context, mode store.Mode, transcription string) (string, error) {
	if mode.LanguageModel == nil || mode.LanguageModel.Name == "" {
		return "", llm.ErrMissingModel
	}
	if mode.Prompt == nil {
		return "", llm.ErrMissingPrompt
	}
	cfg := llm.ModelConfig{
		Name:         mode.LanguageModel.Name,
		SystemPrompt: mode.Prompt.SystemPrompt,
		Window:       c.run.window,
		Clipboard:    c.run.clipboard,
	}
	for _, ex := range mode.Prompt.Examples {
		cfg.Examples = append(cfg.Examples, llm.Example{Input: ex.Input, Output: ex.Output})
	}

	c.toStatus(StatusLoadingLanguageModel)
	var text string
	err := c.telemetry.stage(ctx, "generate", func(ctx context.Context) error {
		return c.processor.Use(ctx, cfg, func() error {
			c.toStatus(StatusGeneratingAIResult)
			var err error
			text, err = c.processor.Process(ctx, transcription, func(partial string) {
				c.sink.Emit(protocol.Transcription{Transcription: partial})
			})
			return err
		})
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("language model returned no text")
	}
	return text, nil
}

// artifacts lists the distinct audio files to keep with a result.
func artifacts(paths ...string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
