package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ReylordDev/LocalFlow/internal/audio"
	"github.com/ReylordDev/LocalFlow/internal/compress"
	"github.com/ReylordDev/LocalFlow/internal/config"
	"github.com/ReylordDev/LocalFlow/internal/desktop"
	"github.com/ReylordDev/LocalFlow/internal/llm"
	"github.com/ReylordDev/LocalFlow/internal/stt"
)

// ErrBackendOffline is returned by Start when a required language model
// backend cannot be reached.
var ErrBackendOffline = errors.New("language model backend is offline")

func newRecorder(cfg config.Config, logger *slog.Logger) (*audio.Recorder, error) {
	frame := time.Duration(cfg.Audio.FrameDurationMS) * time.Millisecond
	var source audio.Source
	switch cfg.Audio.Mode {
	case "mock":
		source = audio.NewMockSource(frame)
	case "ffmpeg":
		src, err := audio.NewFFmpegSource(cfg.Audio.Command, cfg.Audio.InputFormat, cfg.Audio.InputDevice, cfg.Audio.ListCommand)
		if err != nil {
			return nil, err
		}
		source = src
	default:
		return nil, fmt.Errorf("unknown audio mode %q", cfg.Audio.Mode)
	}
	return audio.NewRecorder(source, audio.Config{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		FrameDuration: frame,
		LevelWindow:   cfg.Audio.LevelWindow,
		MaxDuration:   time.Duration(cfg.Audio.MaxDurationS) * time.Second,
		TempDir:       cfg.TempDir,
		DefaultDevice: cfg.Audio.InputDevice,
	}, logger), nil
}

func newCompressor(cfg config.CompressionConfig, logger *slog.Logger) (*compress.Compressor, error) {
	command := cfg.Command
	if cfg.Mode == "none" {
		command = ""
	}
	return compress.New(command, cfg.SampleRate, logger)
}

func newTranscriber(cfg config.STTConfig, logger *slog.Logger) (*stt.Transcriber, error) {
	var engine stt.Engine
	switch cfg.Mode {
	case "mock":
		engine = stt.NewMockEngine(cfg.MockText)
	case "exec":
		e, err := stt.NewExecEngine(cfg.Command, cfg.ModelsDir, cfg.Device)
		if err != nil {
			return nil, err
		}
		engine = e
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
	return stt.NewTranscriber(engine, logger), nil
}

func newDesktop(cfg config.DesktopConfig) (*desktop.WindowDetector, *desktop.ClipboardReader, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	window, err := desktop.NewWindowDetector(cfg.WindowCommand, timeout)
	if err != nil {
		return nil, nil, err
	}
	clipboard, err := desktop.NewClipboardReader(cfg.ClipboardCommand, timeout)
	if err != nil {
		return nil, nil, err
	}
	return window, clipboard, nil
}

// checkBackend pings the language model backend and returns the models it
// serves. A failed ping is fatal only when the backend is required.
func checkBackend(ctx context.Context, cfg config.LLMConfig, processor *llm.Processor, logger *slog.Logger) ([]string, error) {
	catalog, ok := processor.Catalog()
	if !ok {
		return nil, nil
	}
	if err := catalog.Ping(ctx); err != nil {
		if llm.RequiresBackend(cfg) {
			return nil, fmt.Errorf("%w: %v", ErrBackendOffline, err)
		}
		logger.Warn("language model backend unreachable", slog.String("mode", cfg.Mode), slog.String("error", err.Error()))
		return nil, nil
	}
	models, err := catalog.ListModels(ctx)
	if err != nil {
		logger.Warn("failed to list language models", slog.String("error", err.Error()))
		return nil, nil
	}
	logger.Info("language model backend reachable", slog.String("mode", cfg.Mode), slog.Int("models", len(models)))
	return models, nil
}
