package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct {
	models []string
}

// NewMockGenerator echoes the prompt back word by word as partial chunks.
func NewMockGenerator(models ...string) Generator { return &mockGenerator{models: models} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	words := strings.Fields(req.Prompt)
	for i, word := range words {
		content := word
		if i > 0 {
			content = " " + word
		}
		if err := consumer(Chunk{Content: content, Partial: true}); err != nil {
			return err
		}
	}
	return consumer(Chunk{
		Partial:          false,
		CompletionTokens: len(words),
		Latency:          20 * time.Millisecond,
	})
}

func (m *mockGenerator) Ping(context.Context) error { return nil }

func (m *mockGenerator) ListModels(context.Context) ([]string, error) {
	return append([]string(nil), m.models...), nil
}
