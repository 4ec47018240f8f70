// Package compress turns raw recordings into compact FLAC artifacts and
// tracks the temporary files of a workflow run.
package compress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

var ErrMissingInput = errors.New("compress: input artifact missing")

// Compressor re-encodes recordings with ffmpeg. With no command configured it
// passes recordings through unchanged.
type Compressor struct {
	cmd        []string
	sampleRate int
	log        *slog.Logger

	mu      sync.Mutex
	tracked []string
}

// New builds a compressor. An empty command selects passthrough mode.
func New(command string, sampleRate int, logger *slog.Logger) (*Compressor, error) {
	c := &Compressor{sampleRate: sampleRate, log: logger.With(slog.String("component", "compressor"))}
	if command == "" {
		return c, nil
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse compression command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("compression command is empty")
	}
	if c.sampleRate <= 0 {
		c.sampleRate = 16000
	}
	c.cmd = args
	return c, nil
}

// Compress writes a mono FLAC next to path and returns its location.
func (c *Compressor) Compress(ctx context.Context, path string) (string, error) {
	c.track(path)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	if len(c.cmd) == 0 {
		return path, nil
	}

	out := strings.TrimSuffix(path, ".wav") + ".flac"
	c.track(out)
	args := append(append([]string{}, c.cmd[1:]...),
		"-y",
		"-nostdin",
		"-loglevel", "error",
		"-i", path,
		"-ar", strconv.Itoa(c.sampleRate),
		"-ac", "1",
		"-map", "0:a",
		out,
	)
	command := exec.CommandContext(ctx, c.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return "", fmt.Errorf("compression failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	c.log.Debug("recording compressed", slog.String("input", path), slog.String("output", out))
	return out, nil
}

func (c *Compressor) track(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.tracked {
		if p == path {
			return
		}
	}
	c.tracked = append(c.tracked, path)
}

// Cleanup removes every tracked artifact that still exists. Artifacts that
// were moved away are skipped.
func (c *Compressor) Cleanup() {
	c.mu.Lock()
	tracked := c.tracked
	c.tracked = nil
	c.mu.Unlock()
	for _, p := range tracked {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("failed to remove temporary artifact", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}
