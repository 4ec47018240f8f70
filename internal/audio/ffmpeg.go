package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// FFmpegSource captures microphone PCM through an ffmpeg subprocess and
// lists devices with an optional helper command.
type FFmpegSource struct {
	command       string
	inputFormat   string
	defaultDevice string
	listCmd       []string
}

func NewFFmpegSource(command, inputFormat, defaultDevice, listCommand string) (*FFmpegSource, error) {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if defaultDevice == "" {
		defaultDevice = "default"
	}
	var listCmd []string
	if listCommand != "" {
		args, err := shellwords.NewParser().Parse(listCommand)
		if err != nil {
			return nil, fmt.Errorf("parse device list command: %w", err)
		}
		listCmd = args
	}
	return &FFmpegSource{
		command:       command,
		inputFormat:   inputFormat,
		defaultDevice: defaultDevice,
		listCmd:       listCmd,
	}, nil
}

// Devices returns the system default device first, followed by the devices
// reported by the list command.
func (s *FFmpegSource) Devices(ctx context.Context) ([]Device, error) {
	devices := []Device{{Index: 0, Name: s.defaultDevice, MaxInputChannels: 2, DefaultSampleRate: 48000, IsDefault: true}}
	if len(s.listCmd) == 0 {
		return devices, nil
	}
	cmd := exec.CommandContext(ctx, s.listCmd[0], s.listCmd[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return append(devices, parseDeviceList(out, 1, Format{SampleRate: 48000, Channels: 2})...), nil
}

func (s *FFmpegSource) Open(ctx context.Context, device Device, format Format) (io.ReadCloser, error) {
	name := device.Name
	if name == "" {
		name = s.defaultDevice
	}
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.inputFormat,
		"-i", name,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// The stream owns the read end so Wait never closes it under the reader.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	cmd.Stdout = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	pw.Close()

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	select {
	case err := <-exited:
		pr.Close()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegStream{
		stdout:  pr,
		stderr:  &stderr,
		process: cmd.Process,
		exited:  exited,
	}, nil
}

const (
	ffmpegStopTimeout  = 1200 * time.Millisecond
	ffmpegDrainTimeout = 2 * time.Second
)

type ffmpegStream struct {
	stdout  *os.File
	stderr  *bytes.Buffer
	process *os.Process
	exited  <-chan error

	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close interrupts ffmpeg so it flushes, killing it if it does not exit in
// time. Output written before the exit stays readable until EOF; the pipe is
// closed after ffmpegDrainTimeout in case nobody reads it.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.exited:
			if ok {
				s.closeErr = normalizeExitErr(err)
			}
		case <-time.After(ffmpegStopTimeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.exited; ok {
				s.closeErr = normalizeExitErr(err)
			}
		}
		time.AfterFunc(ffmpegDrainTimeout, func() { _ = s.stdout.Close() })

		if s.closeErr != nil && s.stderr.Len() > 0 {
			s.closeErr = fmt.Errorf("%w: %s", s.closeErr, bytes.TrimSpace(s.stderr.Bytes()))
		}
	})
	return s.closeErr
}

// normalizeExitErr treats a non-zero exit after an interrupt as a clean stop.
func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
