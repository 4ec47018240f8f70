package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDeviceBusy    = errors.New("audio: device cannot change while recording")
	ErrUnknownDevice = errors.New("audio: unknown device")
)

type Config struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
	LevelWindow   int
	MaxDuration   time.Duration
	TempDir       string
	DefaultDevice string
}

// CaptureSession is the buffer of one recording. It is created by Start and
// never reused.
type CaptureSession struct {
	ID        uuid.UUID
	Device    Device
	StartedAt time.Time

	stream    io.ReadCloser
	pcm       []byte
	err       error
	closeErr  error
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *CaptureSession) closeStream() {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
	})
}

// Recorder captures audio on a dedicated worker goroutine. Start, Stop and
// Interrupt are called from the controller; level and duration are read
// lock-free.
type Recorder struct {
	source Source
	cfg    Config
	log    *slog.Logger

	mu      sync.Mutex
	device  Device
	session *CaptureSession

	level  atomic.Uint64
	frames atomic.Int64
}

func NewRecorder(source Source, cfg Config, logger *slog.Logger) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	if cfg.LevelWindow <= 0 {
		cfg.LevelWindow = 5
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 30 * time.Minute
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.DefaultDevice == "" {
		cfg.DefaultDevice = "default"
	}
	return &Recorder{
		source: source,
		cfg:    cfg,
		log:    logger.With(slog.String("component", "recorder")),
		device: Device{Index: 0, Name: cfg.DefaultDevice, IsDefault: true},
	}
}

func (r *Recorder) format() Format {
	return Format{SampleRate: r.cfg.SampleRate, Channels: r.cfg.Channels}
}

// Start opens the selected device and begins a fresh capture session. It is
// a no-op when a session is already running.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.log.Warn("start requested while already recording", slog.String("session_id", r.session.ID.String()))
		return nil
	}

	stream, err := r.source.Open(ctx, r.device, r.format())
	if err != nil {
		return fmt.Errorf("open audio device %q: %w", r.device.Name, err)
	}

	s := &CaptureSession{
		ID:        uuid.New(),
		Device:    r.device,
		StartedAt: time.Now(),
		stream:    stream,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.frames.Store(0)
	r.level.Store(0)
	r.session = s
	go r.capture(s)

	r.log.Info("recording started", slog.String("session_id", s.ID.String()), slog.String("device", s.Device.Name))
	return nil
}

func (r *Recorder) capture(s *CaptureSession) {
	defer close(s.done)

	format := r.format()
	frameBytes := int(float64(format.SampleRate)*r.cfg.FrameDuration.Seconds()) * format.bytesPerFrame()
	if frameBytes <= 0 {
		frameBytes = format.bytesPerFrame()
	}
	maxFrames := int64(r.cfg.MaxDuration.Seconds() * float64(format.SampleRate))
	levels := make([]float64, 0, r.cfg.LevelWindow)
	buf := make([]byte, frameBytes)

	for {
		n, err := io.ReadFull(s.stream, buf)
		if aligned := n - n%format.bytesPerFrame(); aligned > 0 {
			chunk := buf[:aligned]
			s.pcm = append(s.pcm, chunk...)
			total := r.frames.Add(int64(aligned / format.bytesPerFrame()))

			if len(levels) == r.cfg.LevelWindow {
				levels = levels[1:]
			}
			levels = append(levels, frameLevel(chunk))
			r.level.Store(math.Float64bits(mean(levels)))

			if total >= maxFrames {
				r.log.Warn("maximum recording duration reached", slog.Duration("max_duration", r.cfg.MaxDuration))
				s.closeStream()
				return
			}
		}
		if err != nil {
			select {
			case <-s.stop:
			default:
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					s.err = err
					r.log.Warn("audio stream failed", slog.String("error", err.Error()))
				} else {
					r.log.Warn("audio stream ended unexpectedly")
				}
			}
			return
		}
	}
}

// detach removes the current session and joins its worker.
func (r *Recorder) detach() *CaptureSession {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	close(s.stop)
	s.closeStream()
	<-s.done
	r.level.Store(0)
	return s
}

// Stop ends the session and flushes the captured audio to a WAV file. It
// returns an empty path when nothing was captured.
func (r *Recorder) Stop() (string, error) {
	s := r.detach()
	if s == nil {
		r.log.Warn("stop requested while not recording")
		return "", nil
	}
	if err := errors.Join(s.err, s.closeErr); err != nil {
		r.log.Warn("capture ended with error", slog.String("session_id", s.ID.String()), slog.String("error", err.Error()))
	}
	if len(s.pcm) == 0 {
		r.log.Warn("no audio captured", slog.String("session_id", s.ID.String()))
		return "", nil
	}

	if err := os.MkdirAll(r.cfg.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	path := filepath.Join(r.cfg.TempDir, fmt.Sprintf("recording-%s.wav", s.ID))
	if err := writeWAV(path, s.pcm, r.format()); err != nil {
		os.Remove(path)
		return "", err
	}
	r.log.Info("recording stopped",
		slog.String("session_id", s.ID.String()),
		slog.Duration("duration", r.Duration()),
		slog.String("path", path))
	return path, nil
}

// Interrupt ends the session and discards everything captured.
func (r *Recorder) Interrupt() error {
	s := r.detach()
	if s == nil {
		return nil
	}
	r.frames.Store(0)
	r.log.Info("recording interrupted", slog.String("session_id", s.ID.String()))
	return nil
}

// Recording reports whether a session is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// AudioLevel is the smoothed input level of the running session in 0..100.
func (r *Recorder) AudioLevel() float64 {
	return math.Float64frombits(r.level.Load())
}

// Duration is the amount of audio captured by the current or last session.
func (r *Recorder) Duration() time.Duration {
	return time.Duration(r.frames.Load()) * time.Second / time.Duration(r.cfg.SampleRate)
}

// Devices lists the inputs the source can open.
func (r *Recorder) Devices(ctx context.Context) ([]Device, error) {
	return r.source.Devices(ctx)
}

// SetDevice selects the input used by the next session.
func (r *Recorder) SetDevice(ctx context.Context, index int) (Device, error) {
	if r.Recording() {
		return Device{}, ErrDeviceBusy
	}
	devices, err := r.source.Devices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.Index != index {
			continue
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.session != nil {
			return Device{}, ErrDeviceBusy
		}
		r.device = d
		r.log.Info("input device selected", slog.Int("index", d.Index), slog.String("device", d.Name))
		return d, nil
	}
	return Device{}, fmt.Errorf("%w: index %d", ErrUnknownDevice, index)
}

// frameLevel is the RMS of a s16le chunk scaled to 0..100.
func frameLevel(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768
		sum += v * v
	}
	return math.Min(100, math.Sqrt(sum/float64(n))*100)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
