package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execEngine struct {
	cmd       []string
	modelsDir string
	device    string
}

type execResult struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// NewExecEngine runs an external transcriber per request. The command gets
// --audio, --model and optional --language, --translate and --device flags
// and must print {"text": "..."} on stdout.
func NewExecEngine(command, modelsDir, device string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execEngine{cmd: args, modelsDir: modelsDir, device: device}, nil
}

func (e *execEngine) Load(_ context.Context, cfg ModelConfig) (Model, error) {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return nil, fmt.Errorf("stt command unavailable: %w", err)
	}
	model := cfg.Name
	if e.modelsDir != "" {
		candidate := filepath.Join(e.modelsDir, cfg.Name)
		if _, err := os.Stat(candidate); err == nil {
			model = candidate
		}
	}
	return &execModel{engine: e, model: model, cfg: cfg}, nil
}

type execModel struct {
	engine *execEngine
	model  string
	cfg    ModelConfig
	mu     sync.Mutex
}

func (m *execModel) Transcribe(ctx context.Context, audioPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.engine.cmd[0]
	cmdArgs := append([]string{}, m.engine.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", audioPath, "--model", m.model)
	if m.cfg.Language != "" && m.cfg.Language != "auto" {
		cmdArgs = append(cmdArgs, "--language", m.cfg.Language)
	}
	if m.cfg.Translate {
		cmdArgs = append(cmdArgs, "--translate")
	}
	if m.engine.device != "" {
		cmdArgs = append(cmdArgs, "--device", m.engine.device)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}
	return resp.Text, nil
}

func (m *execModel) Close() error { return nil }
