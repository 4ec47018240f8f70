package stt

import (
	"context"
	"strings"
)

// ModelConfig selects a voice model and how it should decode.
type ModelConfig struct {
	Name         string
	Language     string // "auto" lets the model detect it
	Translate    bool
	Replacements []Replacement
}

// Replacement is a literal substitution applied to transcripts.
type Replacement struct {
	Original    string
	Replacement string
}

// Engine abstracts STT backends. Load may be expensive; the returned Model
// holds the backend resources until Close.
type Engine interface {
	Load(ctx context.Context, cfg ModelConfig) (Model, error)
}

type Model interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Close() error
}

// ApplyReplacements substitutes every occurrence of each original in order.
// Replacements with an empty original are skipped.
func ApplyReplacements(text string, replacements []Replacement) string {
	for _, r := range replacements {
		if r.Original == "" {
			continue
		}
		text = strings.ReplaceAll(text, r.Original, r.Replacement)
	}
	return text
}
