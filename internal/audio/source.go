package audio

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Format describes the PCM stream a Source must deliver: signed 16-bit
// little-endian interleaved samples.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) bytesPerFrame() int {
	return 2 * f.Channels
}

// Device is an audio input the recorder can open.
type Device struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_samplerate"`
	IsDefault         bool    `json:"is_default"`
}

// Source enumerates devices and opens PCM streams on them. Closing the
// stream stops the underlying capture.
type Source interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, device Device, format Format) (io.ReadCloser, error)
}

// parseDeviceList reads `pactl list short sources` style output. Lines that
// are not tab separated are taken as plain device names. Devices are
// numbered from first.
func parseDeviceList(out []byte, first int, format Format) []Device {
	var devices []Device
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		dev := Device{
			Index:             first + len(devices),
			Name:              line,
			MaxInputChannels:  format.Channels,
			DefaultSampleRate: float64(format.SampleRate),
		}
		fields := strings.Split(line, "\t")
		if len(fields) >= 2 {
			dev.Name = strings.TrimSpace(fields[1])
		}
		if len(fields) >= 4 {
			parseSampleSpec(fields[3], &dev)
		}
		devices = append(devices, dev)
	}
	return devices
}

// parseSampleSpec understands specs such as "s16le 2ch 44100Hz".
func parseSampleSpec(spec string, dev *Device) {
	for _, part := range strings.Fields(spec) {
		switch {
		case strings.HasSuffix(part, "ch"):
			if n, err := strconv.Atoi(strings.TrimSuffix(part, "ch")); err == nil {
				dev.MaxInputChannels = n
			}
		case strings.HasSuffix(part, "Hz"):
			if n, err := strconv.ParseFloat(strings.TrimSuffix(part, "Hz"), 64); err == nil {
				dev.DefaultSampleRate = n
			}
		}
	}
}

// MockSource produces a quiet sine tone in real time. It backs audio.mode=mock.
type MockSource struct {
	DeviceName    string
	FrameDuration time.Duration
}

func NewMockSource(frameDuration time.Duration) *MockSource {
	return &MockSource{DeviceName: "mock", FrameDuration: frameDuration}
}

func (m *MockSource) Devices(_ context.Context) ([]Device, error) {
	return []Device{{Index: 0, Name: m.DeviceName, MaxInputChannels: 1, DefaultSampleRate: 16000, IsDefault: true}}, nil
}

func (m *MockSource) Open(_ context.Context, _ Device, format Format) (io.ReadCloser, error) {
	interval := m.FrameDuration
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	samples := int(float64(format.SampleRate) * interval.Seconds())
	return &toneStream{
		format:   format,
		samples:  samples,
		interval: interval,
		closed:   make(chan struct{}),
	}, nil
}

type toneStream struct {
	format   Format
	samples  int
	interval time.Duration
	phase    float64
	closed   chan struct{}
	once     sync.Once
}

func (t *toneStream) Read(p []byte) (int, error) {
	select {
	case <-t.closed:
		return 0, io.EOF
	case <-time.After(t.interval):
	}
	frameBytes := t.format.bytesPerFrame()
	frames := t.samples
	if limit := len(p) / frameBytes; frames > limit {
		frames = limit
	}
	step := 2 * math.Pi * 440 / float64(t.format.SampleRate)
	for i := 0; i < frames; i++ {
		sample := int16(0.1 * math.MaxInt16 * math.Sin(t.phase))
		t.phase += step
		for c := 0; c < t.format.Channels; c++ {
			off := i*frameBytes + c*2
			p[off] = byte(sample)
			p[off+1] = byte(sample >> 8)
		}
	}
	return frames * frameBytes, nil
}

func (t *toneStream) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
