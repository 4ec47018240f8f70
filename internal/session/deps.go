package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ReylordDev/LocalFlow/internal/audio"
	"github.com/ReylordDev/LocalFlow/internal/desktop"
	"github.com/ReylordDev/LocalFlow/internal/llm"
	"github.com/ReylordDev/LocalFlow/internal/protocol"
	"github.com/ReylordDev/LocalFlow/internal/store"
	"github.com/ReylordDev/LocalFlow/internal/stt"
)

// Recorder captures audio for one recording at a time.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (string, error)
	Interrupt() error
	AudioLevel() float64
	Duration() time.Duration
	Devices(ctx context.Context) ([]audio.Device, error)
	SetDevice(ctx context.Context, index int) (audio.Device, error)
}

type Compressor interface {
	Compress(ctx context.Context, path string) (string, error)
	Cleanup()
}

type Transcriber interface {
	Use(ctx context.Context, cfg stt.ModelConfig, fn func() error) error
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Processor interface {
	Use(ctx context.Context, cfg llm.ModelConfig, fn func() error) error
	Process(ctx context.Context, text string, onPartial func(string)) (string, error)
}

// Store is the persistence the controller needs.
type Store interface {
	ListModes(ctx context.Context) ([]store.Mode, error)
	GetMode(ctx context.Context, id uuid.UUID) (store.Mode, error)
	ActiveMode(ctx context.Context) (store.Mode, error)
	CreateMode(ctx context.Context, in store.ModeCreate) (store.Mode, error)
	UpdateMode(ctx context.Context, up store.ModeUpdate) (store.Mode, error)
	DeleteMode(ctx context.Context, id uuid.UUID) error
	ActivateMode(ctx context.Context, id uuid.UUID) error
	ListResults(ctx context.Context) ([]store.Result, error)
	SaveResult(ctx context.Context, r store.Result, artifacts []string) (store.Result, error)
	DeleteResult(ctx context.Context, id uuid.UUID) error
	AddExample(ctx context.Context, promptID uuid.UUID, in store.ExampleInput) (store.Example, error)
	ListVoiceModels(ctx context.Context) ([]store.VoiceModel, error)
	ListLanguageModels(ctx context.Context) ([]store.LanguageModel, error)
	ListTextReplacements(ctx context.Context) ([]store.TextReplacement, error)
	GlobalTextReplacements(ctx context.Context) ([]store.TextReplacement, error)
	CreateTextReplacement(ctx context.Context, in store.TextReplacementInput) (store.TextReplacement, error)
	DeleteTextReplacement(ctx context.Context, id uuid.UUID) error
}

type WindowDetector interface {
	ActiveWindow(ctx context.Context) (desktop.WindowContext, error)
}

type ClipboardReader interface {
	Text(ctx context.Context) (string, error)
}

// Deps wires the controller to its collaborators. Window and Clipboard are
// optional.
type Deps struct {
	Recorder    Recorder
	Compressor  Compressor
	Transcriber Transcriber
	Processor   Processor
	Store       Store
	Window      WindowDetector
	Clipboard   ClipboardReader
	Sink        protocol.Sink
}
