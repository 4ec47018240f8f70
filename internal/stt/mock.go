package stt

import (
	"context"
	"fmt"
	"os"
)

type mockEngine struct {
	text string
}

// NewMockEngine returns an engine whose models transcribe every file to text.
// An empty text reports the file size instead.
func NewMockEngine(text string) Engine {
	return &mockEngine{text: text}
}

func (m *mockEngine) Load(_ context.Context, cfg ModelConfig) (Model, error) {
	return &mockModel{text: m.text, name: cfg.Name}, nil
}

type mockModel struct {
	text string
	name string
}

func (m *mockModel) Transcribe(_ context.Context, audioPath string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", err
	}
	if m.text != "" {
		return m.text, nil
	}
	return fmt.Sprintf("[%s transcript bytes=%d]", m.name, info.Size()), nil
}

func (m *mockModel) Close() error { return nil }
