package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ReylordDev/LocalFlow/internal/config"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrNoActiveMode = errors.New("store: no active mode")
	ErrInvalidMode  = errors.New("store: invalid mode")
)

// Store is the SQLite-backed persistence gateway for modes, catalog data and
// dictation results.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log.With(slog.String("component", "store")), clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			s.log.Warn("store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		s.log.Warn("store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS voice_models (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    language TEXT NOT NULL,
    speed INTEGER NOT NULL,
    accuracy INTEGER NOT NULL,
    size INTEGER NOT NULL,
    parameters INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS language_models (
    name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS modes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    is_default INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 0,
    voice_language TEXT NOT NULL,
    translate_to_english INTEGER NOT NULL DEFAULT 0,
    use_language_model INTEGER NOT NULL DEFAULT 0,
    record_system_audio INTEGER NOT NULL DEFAULT 0,
    voice_model_id TEXT NOT NULL REFERENCES voice_models(id),
    language_model_name TEXT REFERENCES language_models(name)
);
CREATE TABLE IF NOT EXISTS prompts (
    id TEXT PRIMARY KEY,
    mode_id TEXT NOT NULL UNIQUE REFERENCES modes(id) ON DELETE CASCADE,
    system_prompt TEXT NOT NULL,
    include_clipboard INTEGER NOT NULL DEFAULT 0,
    include_active_window INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS examples (
    id TEXT PRIMARY KEY,
    prompt_id TEXT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
    input TEXT NOT NULL,
    output TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS text_replacements (
    id TEXT PRIMARY KEY,
    mode_id TEXT REFERENCES modes(id) ON DELETE CASCADE,
    original_text TEXT NOT NULL,
    replacement_text TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
    id TEXT PRIMARY KEY,
    mode_id TEXT REFERENCES modes(id) ON DELETE SET NULL,
    created_at INTEGER NOT NULL,
    transcription TEXT NOT NULL,
    ai_result TEXT,
    duration_ms INTEGER NOT NULL,
    processing_time_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at);
CREATE INDEX IF NOT EXISTS idx_text_replacements_mode ON text_replacements(mode_id, created_at);
CREATE INDEX IF NOT EXISTS idx_examples_prompt ON examples(prompt_id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction and commits when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Prune applies configured result retention (called on startup).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 && s.cfg.MaxResults <= 0 {
		return nil
	}
	var doomed []uuid.UUID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if s.cfg.RetentionDays > 0 {
			cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
			ids, err := collectIDs(ctx, tx, `SELECT id FROM results WHERE created_at < ?`, cutoff.UnixNano())
			if err != nil {
				return err
			}
			doomed = append(doomed, ids...)
			if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE created_at < ?`, cutoff.UnixNano()); err != nil {
				return err
			}
		}
		if s.cfg.MaxResults > 0 {
			ids, err := collectIDs(ctx, tx, `SELECT id FROM results ORDER BY created_at DESC LIMIT -1 OFFSET ?`, s.cfg.MaxResults)
			if err != nil {
				return err
			}
			doomed = append(doomed, ids...)
			if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE id IN (
				SELECT id FROM results ORDER BY created_at DESC LIMIT -1 OFFSET ?
			)`, s.cfg.MaxResults); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range doomed {
		if err := os.RemoveAll(s.resultLocation(id)); err != nil {
			s.log.Warn("failed to remove pruned result files", slog.String("result_id", id.String()), slog.String("error", err.Error()))
		}
	}
	if len(doomed) > 0 {
		s.log.Info("pruned results", slog.Int("count", len(doomed)))
	}
	return nil
}

func collectIDs(ctx context.Context, q querier, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
