package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

var defaultVoiceModels = []VoiceModel{
	{Name: "large-v3-turbo", Language: LanguageMultilingual, Speed: 100, Accuracy: 80, Size: 1500, Parameters: 809_000_000},
	{Name: "large-v3", Language: LanguageMultilingual, Speed: 60, Accuracy: 90, Size: 2870, Parameters: 1_550_000_000},
	{Name: "distil-large-v3", Language: LanguageEnglishOnly, Speed: 100, Accuracy: 70, Size: 1400, Parameters: 756_000_000},
}

const (
	voiceOnlyModeName = "Voice Only"
	generalModeName   = "General"
	generalPrompt     = "You are a helpful assistant. Fix any grammar, spelling or punctuation mistakes in the following text."
)

// Seed inserts the voice model catalog, the given language models and, on an
// empty database, the default modes. It leaves exactly one mode active.
func (s *Store) Seed(ctx context.Context, languageModels []string, defaultLanguageModel string) error {
	for _, vm := range defaultVoiceModels {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO voice_models(id, name, language, speed, accuracy, size, parameters)
			 VALUES(?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			uuid.New(), vm.Name, vm.Language, vm.Speed, vm.Accuracy, vm.Size, vm.Parameters); err != nil {
			return fmt.Errorf("seed voice model %s: %w", vm.Name, err)
		}
	}

	names := append([]string{}, languageModels...)
	if defaultLanguageModel != "" {
		names = append(names, defaultLanguageModel)
	}
	if err := s.EnsureLanguageModels(ctx, names); err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM modes`).Scan(&count); err != nil {
		return fmt.Errorf("count modes: %w", err)
	}
	if count == 0 {
		if err := s.seedModes(ctx, defaultLanguageModel); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return ensureActiveMode(ctx, tx)
	})
}

func (s *Store) seedModes(ctx context.Context, defaultLanguageModel string) error {
	voiceOnly := ModeCreate{
		Name:           voiceOnlyModeName,
		Default:        true,
		Active:         true,
		VoiceLanguage:  "en",
		VoiceModelName: "large-v3-turbo",
	}
	if _, err := s.CreateMode(ctx, voiceOnly); err != nil {
		return fmt.Errorf("seed mode %q: %w", voiceOnly.Name, err)
	}

	general := ModeCreate{
		Name:             generalModeName,
		Default:          true,
		VoiceLanguage:    "auto",
		UseLanguageModel: defaultLanguageModel != "",
		VoiceModelName:   "large-v3-turbo",
		Prompt: &PromptInput{
			SystemPrompt: generalPrompt,
			Examples: []ExampleInput{{
				Input:  "I has went to the store yesterday and buyed three apple.",
				Output: "I went to the store yesterday and bought three apples.",
			}},
		},
	}
	if defaultLanguageModel != "" {
		name := defaultLanguageModel
		general.LanguageModelName = &name
	}
	if _, err := s.CreateMode(ctx, general); err != nil {
		return fmt.Errorf("seed mode %q: %w", general.Name, err)
	}
	s.log.Info("seeded default modes")
	return nil
}

// EnsureLanguageModels records the given model names, ignoring known ones.
func (s *Store) EnsureLanguageModels(ctx context.Context, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO language_models(name) VALUES(?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("seed language model %s: %w", name, err)
		}
	}
	return nil
}

// ensureActiveMode activates the first mode (defaults first) when none is active.
func ensureActiveMode(ctx context.Context, q querier) error {
	var active int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM modes WHERE active = 1`).Scan(&active); err != nil {
		return err
	}
	if active == 1 {
		return nil
	}
	if active > 1 {
		if _, err := q.ExecContext(ctx, `UPDATE modes SET active = 0 WHERE id != (
			SELECT id FROM modes WHERE active = 1 ORDER BY rowid LIMIT 1)`); err != nil {
			return err
		}
		return nil
	}
	var id uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT id FROM modes ORDER BY is_default DESC, rowid ASC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `UPDATE modes SET active = 1 WHERE id = ?`, id)
	return err
}
