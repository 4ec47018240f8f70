package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (s *Store) ListVoiceModels(ctx context.Context) ([]VoiceModel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, language, speed, accuracy, size, parameters FROM voice_models ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	models := []VoiceModel{}
	for rows.Next() {
		var v VoiceModel
		if err := rows.Scan(&v.ID, &v.Name, &v.Language, &v.Speed, &v.Accuracy, &v.Size, &v.Parameters); err != nil {
			return nil, err
		}
		models = append(models, v)
	}
	return models, rows.Err()
}

func (s *Store) ListLanguageModels(ctx context.Context) ([]LanguageModel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM language_models ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	models := []LanguageModel{}
	for rows.Next() {
		var m LanguageModel
		if err := rows.Scan(&m.Name); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// AddExample appends an example to the prompt with promptID.
func (s *Store) AddExample(ctx context.Context, promptID uuid.UUID, in ExampleInput) (Example, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompts WHERE id = ?`, promptID).Scan(&exists); err != nil {
		return Example{}, err
	}
	if exists == 0 {
		return Example{}, fmt.Errorf("prompt %s: %w", promptID, ErrNotFound)
	}
	return insertExample(ctx, s.db, promptID, in)
}

func insertExample(ctx context.Context, q querier, promptID uuid.UUID, in ExampleInput) (Example, error) {
	ex := Example{ID: uuid.New(), Input: in.Input, Output: in.Output}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO examples(id, prompt_id, input, output) VALUES(?, ?, ?, ?)`,
		ex.ID, promptID, ex.Input, ex.Output); err != nil {
		return Example{}, fmt.Errorf("insert example: %w", err)
	}
	return ex, nil
}

// ListTextReplacements returns global and mode-scoped replacements.
func (s *Store) ListTextReplacements(ctx context.Context) ([]TextReplacement, error) {
	return listTextReplacements(ctx, s.db, "")
}

// GlobalTextReplacements returns the replacements that apply to every mode.
func (s *Store) GlobalTextReplacements(ctx context.Context) ([]TextReplacement, error) {
	return listTextReplacements(ctx, s.db, `WHERE mode_id IS NULL`)
}

func listTextReplacements(ctx context.Context, q querier, where string, args ...any) ([]TextReplacement, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, original_text, replacement_text, mode_id FROM text_replacements `+where+
			` ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("load text replacements: %w", err)
	}
	defer rows.Close()
	out := []TextReplacement{}
	for rows.Next() {
		var tr TextReplacement
		var modeID uuid.NullUUID
		if err := rows.Scan(&tr.ID, &tr.OriginalText, &tr.ReplacementText, &modeID); err != nil {
			return nil, err
		}
		if modeID.Valid {
			id := modeID.UUID
			tr.ModeID = &id
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// CreateTextReplacement adds a global replacement.
func (s *Store) CreateTextReplacement(ctx context.Context, in TextReplacementInput) (TextReplacement, error) {
	if in.OriginalText == "" {
		return TextReplacement{}, errors.New("store: original_text must not be empty")
	}
	tr := TextReplacement{ID: uuid.New(), OriginalText: in.OriginalText, ReplacementText: in.ReplacementText}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO text_replacements(id, mode_id, original_text, replacement_text, created_at)
		 VALUES(?, NULL, ?, ?, ?)`,
		tr.ID, tr.OriginalText, tr.ReplacementText, s.clock().UnixNano()); err != nil {
		return TextReplacement{}, fmt.Errorf("insert text replacement: %w", err)
	}
	return tr, nil
}

func (s *Store) DeleteTextReplacement(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM text_replacements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete text replacement: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("text replacement %s: %w", id, err)
	}
	return nil
}

func (s *Store) replaceModeTextReplacements(ctx context.Context, q querier, modeID uuid.UUID, in []TextReplacementInput) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM text_replacements WHERE mode_id = ?`, modeID); err != nil {
		return fmt.Errorf("clear text replacements: %w", err)
	}
	now := s.clock().UnixNano()
	for i, tr := range in {
		if tr.OriginalText == "" {
			continue
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO text_replacements(id, mode_id, original_text, replacement_text, created_at)
			 VALUES(?, ?, ?, ?, ?)`,
			uuid.New(), modeID, tr.OriginalText, tr.ReplacementText, now+int64(i)); err != nil {
			return fmt.Errorf("insert text replacement: %w", err)
		}
	}
	return nil
}
