package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const modeSelect = `SELECT m.id, m.name, m.is_default, m.active, m.voice_language, m.translate_to_english,
       m.use_language_model, m.record_system_audio, m.language_model_name,
       v.id, v.name, v.language, v.speed, v.accuracy, v.size, v.parameters
FROM modes m JOIN voice_models v ON v.id = m.voice_model_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMode(row rowScanner) (Mode, error) {
	var m Mode
	var lm sql.NullString
	err := row.Scan(&m.ID, &m.Name, &m.Default, &m.Active, &m.VoiceLanguage, &m.TranslateToEnglish,
		&m.UseLanguageModel, &m.RecordSystemAudio, &lm,
		&m.VoiceModel.ID, &m.VoiceModel.Name, &m.VoiceModel.Language, &m.VoiceModel.Speed,
		&m.VoiceModel.Accuracy, &m.VoiceModel.Size, &m.VoiceModel.Parameters)
	if err != nil {
		return Mode{}, err
	}
	if lm.Valid {
		m.LanguageModel = &LanguageModel{Name: lm.String}
	}
	return m, nil
}

// ListModes returns every mode in creation order.
func (s *Store) ListModes(ctx context.Context) ([]Mode, error) {
	return listModes(ctx, s.db)
}

func listModes(ctx context.Context, q querier) ([]Mode, error) {
	rows, err := q.QueryContext(ctx, modeSelect+` ORDER BY m.rowid ASC`)
	if err != nil {
		return nil, err
	}
	var modes []Mode
	for rows.Next() {
		m, err := scanMode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		modes = append(modes, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range modes {
		if err := loadModeDetails(ctx, q, &modes[i]); err != nil {
			return nil, err
		}
	}
	return modes, nil
}

// GetMode returns the mode with id, or ErrNotFound.
func (s *Store) GetMode(ctx context.Context, id uuid.UUID) (Mode, error) {
	return getMode(ctx, s.db, id)
}

func getMode(ctx context.Context, q querier, id uuid.UUID) (Mode, error) {
	m, err := scanMode(q.QueryRowContext(ctx, modeSelect+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Mode{}, fmt.Errorf("mode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Mode{}, err
	}
	if err := loadModeDetails(ctx, q, &m); err != nil {
		return Mode{}, err
	}
	return m, nil
}

// ActiveMode returns the single active mode.
func (s *Store) ActiveMode(ctx context.Context) (Mode, error) {
	m, err := scanMode(s.db.QueryRowContext(ctx, modeSelect+` WHERE m.active = 1 ORDER BY m.rowid LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Mode{}, ErrNoActiveMode
	}
	if err != nil {
		return Mode{}, err
	}
	if err := loadModeDetails(ctx, s.db, &m); err != nil {
		return Mode{}, err
	}
	return m, nil
}

func loadModeDetails(ctx context.Context, q querier, m *Mode) error {
	var p Prompt
	err := q.QueryRowContext(ctx,
		`SELECT id, system_prompt, include_clipboard, include_active_window FROM prompts WHERE mode_id = ?`, m.ID).
		Scan(&p.ID, &p.SystemPrompt, &p.IncludeClipboard, &p.IncludeActiveWindow)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		m.Prompt = nil
	case err != nil:
		return fmt.Errorf("load prompt: %w", err)
	default:
		examples, err := listExamples(ctx, q, p.ID)
		if err != nil {
			return err
		}
		p.Examples = examples
		m.Prompt = &p
	}

	replacements, err := listTextReplacements(ctx, q, `WHERE mode_id = ?`, m.ID)
	if err != nil {
		return err
	}
	m.TextReplacements = replacements
	return nil
}

func listExamples(ctx context.Context, q querier, promptID uuid.UUID) ([]Example, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, input, output FROM examples WHERE prompt_id = ? ORDER BY rowid ASC`, promptID)
	if err != nil {
		return nil, fmt.Errorf("load examples: %w", err)
	}
	defer rows.Close()
	examples := []Example{}
	for rows.Next() {
		var e Example
		if err := rows.Scan(&e.ID, &e.Input, &e.Output); err != nil {
			return nil, err
		}
		examples = append(examples, e)
	}
	return examples, rows.Err()
}

// CreateMode validates and inserts a mode with its prompt and mode-scoped
// text replacements.
func (s *Store) CreateMode(ctx context.Context, in ModeCreate) (Mode, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Mode{}, fmt.Errorf("%w: name must not be empty", ErrInvalidMode)
	}
	if !validVoiceLanguage(in.VoiceLanguage) {
		return Mode{}, fmt.Errorf("%w: unsupported voice_language %q", ErrInvalidMode, in.VoiceLanguage)
	}

	id := uuid.New()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		voiceModelID, err := voiceModelIDByName(ctx, tx, in.VoiceModelName)
		if err != nil {
			return err
		}
		lmName, err := resolveLanguageModel(ctx, tx, in.LanguageModelName)
		if err != nil {
			return err
		}
		if in.UseLanguageModel && (!lmName.Valid || in.Prompt == nil) {
			return fmt.Errorf("%w: use_language_model requires a language model and a prompt", ErrInvalidMode)
		}
		if in.Active {
			if _, err := tx.ExecContext(ctx, `UPDATE modes SET active = 0`); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO modes(id, name, is_default, active, voice_language, translate_to_english,
			                   use_language_model, record_system_audio, voice_model_id, language_model_name)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.Name, in.Default, in.Active, in.VoiceLanguage, in.TranslateToEnglish,
			in.UseLanguageModel, in.RecordSystemAudio, voiceModelID, lmName); err != nil {
			return fmt.Errorf("insert mode: %w", err)
		}
		if in.Prompt != nil {
			if err := upsertPrompt(ctx, tx, id, *in.Prompt); err != nil {
				return err
			}
		}
		if err := s.replaceModeTextReplacements(ctx, tx, id, in.TextReplacements); err != nil {
			return err
		}
		return ensureActiveMode(ctx, tx)
	})
	if err != nil {
		return Mode{}, err
	}
	return s.GetMode(ctx, id)
}

// UpdateMode applies the set fields of up to an existing mode.
func (s *Store) UpdateMode(ctx context.Context, up ModeUpdate) (Mode, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getMode(ctx, tx, up.ID)
		if err != nil {
			return err
		}

		if up.Name != nil {
			cur.Name = strings.TrimSpace(*up.Name)
			if cur.Name == "" {
				return fmt.Errorf("%w: name must not be empty", ErrInvalidMode)
			}
		}
		if up.Default != nil {
			cur.Default = *up.Default
		}
		if up.VoiceLanguage != nil {
			if !validVoiceLanguage(*up.VoiceLanguage) {
				return fmt.Errorf("%w: unsupported voice_language %q", ErrInvalidMode, *up.VoiceLanguage)
			}
			cur.VoiceLanguage = *up.VoiceLanguage
		}
		if up.TranslateToEnglish != nil {
			cur.TranslateToEnglish = *up.TranslateToEnglish
		}
		if up.UseLanguageModel != nil {
			cur.UseLanguageModel = *up.UseLanguageModel
		}
		if up.RecordSystemAudio != nil {
			cur.RecordSystemAudio = *up.RecordSystemAudio
		}
		voiceModelID := cur.VoiceModel.ID
		if up.VoiceModelName != nil {
			if voiceModelID, err = voiceModelIDByName(ctx, tx, *up.VoiceModelName); err != nil {
				return err
			}
		}
		var lmName sql.NullString
		if cur.LanguageModel != nil {
			lmName = sql.NullString{String: cur.LanguageModel.Name, Valid: true}
		}
		if up.LanguageModelName != nil {
			if lmName, err = resolveLanguageModel(ctx, tx, up.LanguageModelName); err != nil {
				return err
			}
		}
		hasPrompt := cur.Prompt != nil || up.Prompt != nil
		if cur.UseLanguageModel && (!lmName.Valid || !hasPrompt) {
			return fmt.Errorf("%w: use_language_model requires a language model and a prompt", ErrInvalidMode)
		}

		active := cur.Active
		if up.Active != nil {
			active = *up.Active
			if active && !cur.Active {
				if _, err := tx.ExecContext(ctx, `UPDATE modes SET active = 0`); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE modes SET name = ?, is_default = ?, active = ?, voice_language = ?, translate_to_english = ?,
			        use_language_model = ?, record_system_audio = ?, voice_model_id = ?, language_model_name = ?
			 WHERE id = ?`,
			cur.Name, cur.Default, active, cur.VoiceLanguage, cur.TranslateToEnglish,
			cur.UseLanguageModel, cur.RecordSystemAudio, voiceModelID, lmName, cur.ID); err != nil {
			return fmt.Errorf("update mode: %w", err)
		}
		if up.Prompt != nil {
			if err := upsertPrompt(ctx, tx, cur.ID, *up.Prompt); err != nil {
				return err
			}
		}
		if up.TextReplacements != nil {
			if err := s.replaceModeTextReplacements(ctx, tx, cur.ID, *up.TextReplacements); err != nil {
				return err
			}
		}
		return ensureActiveMode(ctx, tx)
	})
	if err != nil {
		return Mode{}, err
	}
	return s.GetMode(ctx, up.ID)
}

// DeleteMode removes a mode with its prompt, examples and scoped text
// replacements. If it was active another mode is activated.
func (s *Store) DeleteMode(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM modes WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete mode: %w", err)
		}
		if err := affectedOne(res); err != nil {
			return fmt.Errorf("mode %s: %w", id, err)
		}
		return ensureActiveMode(ctx, tx)
	})
}

// ActivateMode makes id the only active mode.
func (s *Store) ActivateMode(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM modes WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("mode %s: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE modes SET active = CASE WHEN id = ? THEN 1 ELSE 0 END`, id); err != nil {
			return fmt.Errorf("activate mode: %w", err)
		}
		return nil
	})
}

func voiceModelIDByName(ctx context.Context, q querier, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT id FROM voice_models WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: unknown voice model %q", ErrInvalidMode, name)
	}
	return id, err
}

func resolveLanguageModel(ctx context.Context, q querier, name *string) (sql.NullString, error) {
	if name == nil || strings.TrimSpace(*name) == "" {
		return sql.NullString{}, nil
	}
	var found string
	err := q.QueryRowContext(ctx, `SELECT name FROM language_models WHERE name = ?`, *name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullString{}, fmt.Errorf("%w: unknown language model %q", ErrInvalidMode, *name)
	}
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: found, Valid: true}, nil
}

func upsertPrompt(ctx context.Context, q querier, modeID uuid.UUID, in PromptInput) error {
	var promptID uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT id FROM prompts WHERE mode_id = ?`, modeID).Scan(&promptID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		promptID = uuid.New()
		if _, err := q.ExecContext(ctx,
			`INSERT INTO prompts(id, mode_id, system_prompt, include_clipboard, include_active_window)
			 VALUES(?, ?, ?, ?, ?)`,
			promptID, modeID, in.SystemPrompt, in.IncludeClipboard, in.IncludeActiveWindow); err != nil {
			return fmt.Errorf("insert prompt: %w", err)
		}
	case err != nil:
		return err
	default:
		if _, err := q.ExecContext(ctx,
			`UPDATE prompts SET system_prompt = ?, include_clipboard = ?, include_active_window = ? WHERE id = ?`,
			in.SystemPrompt, in.IncludeClipboard, in.IncludeActiveWindow, promptID); err != nil {
			return fmt.Errorf("update prompt: %w", err)
		}
	}
	if in.Examples == nil {
		return nil
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM examples WHERE prompt_id = ?`, promptID); err != nil {
		return fmt.Errorf("clear examples: %w", err)
	}
	for _, ex := range in.Examples {
		if _, err := insertExample(ctx, q, promptID, ex); err != nil {
			return err
		}
	}
	return nil
}
