package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Store.Path != filepath.Join("data", "localflow.db") {
		t.Fatalf("expected store path derived from data_dir, got %q", cfg.Store.Path)
	}
	if cfg.Store.ResultsDir != filepath.Join("data", "results") {
		t.Fatalf("expected results dir derived from data_dir, got %q", cfg.Store.ResultsDir)
	}
	if cfg.Audio.MaxDurationS != 1800 {
		t.Fatalf("expected 30 minute ceiling, got %d", cfg.Audio.MaxDurationS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOCALFLOW_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOCALFLOW_BUS_USERNAME", "alice")
	t.Setenv("LOCALFLOW_BUS_PASSWORD", "secret")
	t.Setenv("LOCALFLOW_BUS_TLS_INSECURE", "true")
	t.Setenv("LOCALFLOW_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOCALFLOW_DATA_DIR", "/var/lib/localflow")
	t.Setenv("LOCALFLOW_STORE_RETENTION_DAYS", "7")
	t.Setenv("LOCALFLOW_STORE_MAX_RESULTS", "123")
	t.Setenv("LOCALFLOW_STORE_VACUUM_ON_START", "true")
	t.Setenv("LOCALFLOW_LLM_MODE", "mock")
	t.Setenv("LOCALFLOW_LLM_TEMPERATURE", "0.5")
	t.Setenv("LOCALFLOW_AUDIO_LEVEL_WINDOW", "9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Store.Path != filepath.Join("/var/lib/localflow", "localflow.db") {
		t.Fatalf("expected store path under overridden data dir, got %q", cfg.Store.Path)
	}
	if cfg.Store.RetentionDays != 7 {
		t.Fatalf("expected retention days override")
	}
	if cfg.Store.MaxResults != 123 {
		t.Fatalf("expected max results override")
	}
	if !cfg.Store.VacuumOnStart {
		t.Fatalf("expected vacuum flag override")
	}
	if cfg.LLM.Mode != "mock" || cfg.LLM.Temperature != 0.5 {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if cfg.Audio.LevelWindow != 9 {
		t.Fatalf("expected level window override")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localflow.yaml")
	data := []byte(`
runtime_name: test-flow
data_dir: /tmp/flow
stt:
  mode: exec
  command: "whisper-cli --json"
llm:
  mode: openai
  api_key: sk-test
  default_model: gpt-4o-mini
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "test-flow" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.STT.Command != "whisper-cli --json" {
		t.Fatalf("unexpected stt command %q", cfg.STT.Command)
	}
	if cfg.LLM.DefaultModel != "gpt-4o-mini" {
		t.Fatalf("unexpected default model %q", cfg.LLM.DefaultModel)
	}
}

func TestValidateRejectsBadModes(t *testing.T) {
	cfg := Default()
	applyDerivedDefaults(&cfg)
	cfg.STT.Mode = "exec"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for exec mode without command")
	}

	cfg = Default()
	applyDerivedDefaults(&cfg)
	cfg.LLM.Mode = "bogus"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown llm mode")
	}

	cfg = Default()
	applyDerivedDefaults(&cfg)
	cfg.Telemetry.TraceExporter = "otlp"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for otlp exporter without endpoint")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
