package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

func (s *Store) resultLocation(id uuid.UUID) string {
	return filepath.Join(s.cfg.ResultsDir, id.String())
}

// SaveResult moves the artifacts into the result's storage location and
// records the result. Artifacts are renamed to recording<ext>. The returned
// result carries its location and expanded mode.
func (s *Store) SaveResult(ctx context.Context, r Result, artifacts []string) (Result, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock()
	}
	r.Location = s.resultLocation(r.ID)

	if err := os.MkdirAll(r.Location, 0o755); err != nil {
		return Result{}, fmt.Errorf("create result dir: %w", err)
	}
	moved := make(map[string]string, len(artifacts))
	for _, src := range artifacts {
		if src == "" {
			continue
		}
		dst := filepath.Join(r.Location, "recording"+filepath.Ext(src))
		if err := moveFile(src, dst); err != nil {
			s.restoreArtifacts(r.Location, moved)
			return Result{}, fmt.Errorf("relocate %s: %w", filepath.Base(src), err)
		}
		moved[src] = dst
	}

	var modeID uuid.NullUUID
	if r.ModeID != nil {
		modeID = uuid.NullUUID{UUID: *r.ModeID, Valid: true}
	}
	var aiResult sql.NullString
	if r.AIResult != nil {
		aiResult = sql.NullString{String: *r.AIResult, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO results(id, mode_id, created_at, transcription, ai_result, duration_ms, processing_time_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		r.ID, modeID, r.CreatedAt.UnixNano(), r.Transcription, aiResult,
		r.Duration.Milliseconds(), r.ProcessingTime.Milliseconds()); err != nil {
		s.restoreArtifacts(r.Location, moved)
		return Result{}, fmt.Errorf("insert result: %w", err)
	}

	if r.ModeID != nil && r.Mode == nil {
		if m, err := s.GetMode(ctx, *r.ModeID); err == nil {
			r.Mode = &m
		}
	}
	s.log.Info("result saved", slog.String("result_id", r.ID.String()), slog.String("location", r.Location))
	return r, nil
}

// ListResults returns results newest first with their modes expanded.
func (s *Store) ListResults(ctx context.Context) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode_id, created_at, transcription, ai_result, duration_ms, processing_time_ms
		 FROM results ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	results := []Result{}
	for rows.Next() {
		var r Result
		var modeID uuid.NullUUID
		var aiResult sql.NullString
		var created, durationMS, processingMS int64
		if err := rows.Scan(&r.ID, &modeID, &created, &r.Transcription, &aiResult, &durationMS, &processingMS); err != nil {
			rows.Close()
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.ProcessingTime = time.Duration(processingMS) * time.Millisecond
		r.Location = s.resultLocation(r.ID)
		if modeID.Valid {
			id := modeID.UUID
			r.ModeID = &id
		}
		if aiResult.Valid {
			text := aiResult.String
			r.AIResult = &text
		}
		results = append(results, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	modes := make(map[uuid.UUID]*Mode)
	for i := range results {
		if results[i].ModeID == nil {
			continue
		}
		id := *results[i].ModeID
		m, ok := modes[id]
		if !ok {
			loaded, err := s.GetMode(ctx, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			if err == nil {
				m = &loaded
			}
			modes[id] = m
		}
		results[i].Mode = m
	}
	return results, nil
}

// DeleteResult removes the result row and its storage directory.
func (s *Store) DeleteResult(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("result %s: %w", id, err)
	}
	if err := os.RemoveAll(s.resultLocation(id)); err != nil {
		return fmt.Errorf("remove result files: %w", err)
	}
	return nil
}

// restoreArtifacts moves relocated files back to their sources and removes
// the result directory.
func (s *Store) restoreArtifacts(location string, moved map[string]string) {
	for src, dst := range moved {
		if err := moveFile(dst, src); err != nil {
			s.log.Warn("restore artifact failed", slog.String("path", src), slog.String("error", err.Error()))
			return
		}
	}
	os.RemoveAll(location)
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
