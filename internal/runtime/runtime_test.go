package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ReylordDev/LocalFlow/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = tmp
	cfg.TempDir = filepath.Join(tmp, "tmp")
	cfg.Store.Path = filepath.Join(tmp, "localflow.db")
	cfg.Store.ResultsDir = filepath.Join(tmp, "results")
	cfg.Audio.Mode = "mock"
	cfg.Compression.Mode = "none"
	cfg.STT.Mode = "mock"
	cfg.LLM.Mode = "mock"
	return cfg
}

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var msgs []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("invalid output line %q: %v", line, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestRuntimeServesUntilInputCloses(t *testing.T) {
	cfg := testConfig(t)
	in := strings.NewReader(strings.Join([]string{
		`{"kind":"request","channel":"database:modes:getAll","id":"m1"}`,
		`{"kind":"request","channel":"database:voiceModels:getAll","id":"v1"}`,
		`not json`,
	}, "\n") + "\n")
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := New(cfg, logger, in, &out).Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	msgs := decodeLines(t, out.String())
	if len(msgs) != 5 {
		t.Fatalf("expected 5 output lines, got %d: %s", len(msgs), out.String())
	}
	if msgs[0]["updateKind"] != "progress" || msgs[0]["status"] != "start" {
		t.Fatalf("expected init start first, got %v", msgs[0])
	}
	if msgs[1]["updateKind"] != "progress" || msgs[1]["status"] != "complete" {
		t.Fatalf("expected init complete second, got %v", msgs[1])
	}
	if msgs[2]["kind"] != "response" || msgs[2]["id"] != "m1" {
		t.Fatalf("expected modes response, got %v", msgs[2])
	}
	if modes, ok := msgs[2]["data"].([]any); !ok || len(modes) != 2 {
		t.Fatalf("expected two seeded modes, got %v", msgs[2]["data"])
	}
	if msgs[3]["id"] != "v1" {
		t.Fatalf("expected voice models response, got %v", msgs[3])
	}
	if msgs[4]["updateKind"] != "error" {
		t.Fatalf("expected error update for malformed line, got %v", msgs[4])
	}
}

func TestRuntimeFailsWhenBackendOffline(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(nil)
	endpoint := srv.URL
	srv.Close()
	cfg.LLM.Mode = "ollama"
	cfg.LLM.Endpoint = endpoint
	cfg.LLM.RequireBackend = true

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := New(cfg, logger, strings.NewReader(""), &out).Start(context.Background())
	if !errors.Is(err, ErrBackendOffline) {
		t.Fatalf("expected ErrBackendOffline, got %v", err)
	}
	msgs := decodeLines(t, out.String())
	var sawError bool
	for _, msg := range msgs {
		if msg["updateKind"] == "error" && strings.Contains(msg["error"].(string), "offline") {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected offline error update, got %s", out.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	rt := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)), strings.NewReader(""), io.Discard)
	srv := httptest.NewServer(rt.httpServer(nil).Handler)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503 before start, got %d", resp.StatusCode)
	}

	rt.ready.Store(true)
	resp, err = srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "ready" {
		t.Fatalf("expected ready, got %d %q", resp.StatusCode, body)
	}

	resp, err = srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
