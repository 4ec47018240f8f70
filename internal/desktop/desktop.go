// Package desktop reads context from the user's desktop session through
// helper commands, so the daemon stays free of windowing-system bindings.
package desktop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// ErrNotConfigured is returned when no helper command is set.
var ErrNotConfigured = errors.New("desktop: helper command not configured")

// WindowContext describes the focused application window.
type WindowContext struct {
	Title   string `json:"title"`
	Process string `json:"process"`
	AppName string `json:"app_name"`
}

type helper struct {
	cmd     []string
	timeout time.Duration
}

func newHelper(command string, timeout time.Duration) (*helper, error) {
	if strings.TrimSpace(command) == "" {
		return &helper{timeout: timeout}, nil
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse desktop command: %w", err)
	}
	return &helper{cmd: args, timeout: timeout}, nil
}

func (h *helper) run(ctx context.Context) ([]byte, error) {
	if len(h.cmd) == 0 {
		return nil, ErrNotConfigured
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, h.cmd[0], h.cmd[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", h.cmd[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// WindowDetector runs a command that prints the focused window as
// {"title":..., "process":..., "app_name":...}.
type WindowDetector struct {
	h *helper
}

func NewWindowDetector(command string, timeout time.Duration) (*WindowDetector, error) {
	h, err := newHelper(command, timeout)
	if err != nil {
		return nil, err
	}
	return &WindowDetector{h: h}, nil
}

func (d *WindowDetector) ActiveWindow(ctx context.Context) (WindowContext, error) {
	out, err := d.h.run(ctx)
	if err != nil {
		return WindowContext{}, err
	}
	var win WindowContext
	if err := json.Unmarshal(bytes.TrimSpace(out), &win); err != nil {
		return WindowContext{}, fmt.Errorf("decode window context: %w", err)
	}
	if win.AppName == "" {
		win.AppName = win.Process
	}
	return win, nil
}

// ClipboardReader runs a command that prints the clipboard text.
type ClipboardReader struct {
	h *helper
}

func NewClipboardReader(command string, timeout time.Duration) (*ClipboardReader, error) {
	h, err := newHelper(command, timeout)
	if err != nil {
		return nil, err
	}
	return &ClipboardReader{h: h}, nil
}

func (r *ClipboardReader) Text(ctx context.Context) (string, error) {
	out, err := r.h.run(ctx)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
