package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.flac")
	if err := os.WriteFile(path, []byte("fLaC"), 0o600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribeRequiresModel(t *testing.T) {
	tr := NewTranscriber(NewMockEngine("hello"), newLogger())
	if _, err := tr.Transcribe(context.Background(), writeAudio(t)); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestUseAppliesReplacementsAndUnloads(t *testing.T) {
	tr := NewTranscriber(NewMockEngine("  ship it to lf today  "), newLogger())
	path := writeAudio(t)
	cfg := ModelConfig{
		Name:     "large-v3-turbo",
		Language: "en",
		Replacements: []Replacement{
			{Original: "lf", Replacement: "LocalFlow"},
			{Original: "LocalFlow today", Replacement: "LocalFlow now"},
		},
	}

	var text string
	err := tr.Use(context.Background(), cfg, func() error {
		var err error
		text, err = tr.Transcribe(context.Background(), path)
		return err
	})
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if text != "ship it to LocalFlow now" {
		t.Fatalf("unexpected text %q", text)
	}
	if _, err := tr.Transcribe(context.Background(), path); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected model unloaded after Use, got %v", err)
	}
}

func TestUseUnloadsOnError(t *testing.T) {
	tr := NewTranscriber(NewMockEngine("x"), newLogger())
	boom := errors.New("boom")
	err := tr.Use(context.Background(), ModelConfig{Name: "m"}, func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if tr.model != nil {
		t.Fatal("expected model released after failing callback")
	}
}

func TestApplyReplacements(t *testing.T) {
	if got := ApplyReplacements("no match here", []Replacement{{Original: "zzz", Replacement: "y"}}); got != "no match here" {
		t.Fatalf("expected unchanged text, got %q", got)
	}
	if got := ApplyReplacements("keep", []Replacement{{Original: "", Replacement: "y"}}); got != "keep" {
		t.Fatalf("expected empty original skipped, got %q", got)
	}
	if got := ApplyReplacements("um so um yes", []Replacement{{Original: "um ", Replacement: ""}}); got != "so yes" {
		t.Fatalf("expected deletion replacement, got %q", got)
	}
}

func TestExecEngineRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecEngine("", "", ""); err == nil {
		t.Fatal("expected error for empty command")
	}
}
