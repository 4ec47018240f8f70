package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ReylordDev/LocalFlow/internal/audio"
	"github.com/ReylordDev/LocalFlow/internal/config"
	"github.com/ReylordDev/LocalFlow/internal/desktop"
	"github.com/ReylordDev/LocalFlow/internal/llm"
	"github.com/ReylordDev/LocalFlow/internal/protocol"
	"github.com/ReylordDev/LocalFlow/internal/store"
	"github.com/ReylordDev/LocalFlow/internal/stt"
)

type fakeRecorder struct {
	dir          string
	recording    bool
	interrupted  int
	startErr     error
	interruptErr error
	noAudio      bool
	device       audio.Device
	seq          int
}

func (r *fakeRecorder) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.recording = true
	return nil
}

func (r *fakeRecorder) Stop() (string, error) {
	r.recording = false
	if r.noAudio {
		return "", nil
	}
	r.seq++
	path := filepath.Join(r.dir, fmt.Sprintf("recording-%d.wav", r.seq))
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (r *fakeRecorder) Interrupt() error {
	r.recording = false
	r.interrupted++
	return r.interruptErr
}

func (r *fakeRecorder) AudioLevel() float64     { return 42 }
func (r *fakeRecorder) Duration() time.Duration { return 2 * time.Second }

func (r *fakeRecorder) Devices(context.Context) ([]audio.Device, error) {
	return []audio.Device{{Index: 0, Name: "default", IsDefault: true}, {Index: 1, Name: "usb"}}, nil
}

func (r *fakeRecorder) SetDevice(_ context.Context, index int) (audio.Device, error) {
	r.device = audio.Device{Index: index, Name: "usb"}
	return r.device, nil
}

type fakeCompressor struct {
	tracked  []string
	cleanups int
	err      error
}

func (c *fakeCompressor) Compress(_ context.Context, path string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	out := strings.TrimSuffix(path, ".wav") + ".flac"
	c.tracked = append(c.tracked, path, out)
	return out, os.WriteFile(out, []byte("fLaC"), 0o644)
}

func (c *fakeCompressor) Cleanup() {
	c.cleanups++
	for _, p := range c.tracked {
		os.Remove(p)
	}
	c.tracked = nil
}

type fakeTranscriber struct {
	text string
	err  error
	cfg  stt.ModelConfig
}

func (f *fakeTranscriber) Use(_ context.Context, cfg stt.ModelConfig, fn func() error) error {
	f.cfg = cfg
	return fn()
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return stt.ApplyReplacements(f.text, f.cfg.Replacements), nil
}

type fakeProcessor struct {
	text string
	err  error
	cfg  llm.ModelConfig
}

func (f *fakeProcessor) Use(_ context.Context, cfg llm.ModelConfig, fn func() error) error {
	f.cfg = cfg
	return fn()
}

func (f *fakeProcessor) Process(_ context.Context, _ string, onPartial func(string)) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	onPartial(f.text[:len(f.text)/2])
	onPartial(f.text)
	return f.text, nil
}

type fakeWindow struct{}

func (fakeWindow) ActiveWindow(context.Context) (desktop.WindowContext, error) {
	return desktop.WindowContext{Title: "notes.txt", Process: "code.exe", AppName: "Code"}, nil
}

type fakeClipboard struct{}

func (fakeClipboard) Text(context.Context) (string, error) { return "copied", nil }

type recordingSink struct {
	mu        sync.Mutex
	updates   []protocol.Update
	responses []protocol.Response
}

func (s *recordingSink) Emit(u protocol.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *recordingSink) Respond(r protocol.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
}

func (s *recordingSink) statuses() []string {
	var out []string
	for _, u := range s.updates {
		if st, ok := u.(protocol.Status); ok {
			out = append(out, st.Status)
		}
	}
	return out
}

func (s *recordingSink) results() []store.Result {
	var out []store.Result
	for _, u := range s.updates {
		if r, ok := u.(protocol.ResultUpdate); ok {
			out = append(out, r.Result)
		}
	}
	return out
}

func (s *recordingSink) errors() []string {
	var out []string
	for _, u := range s.updates {
		if e, ok := u.(protocol.ErrorUpdate); ok {
			out = append(out, e.Error)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.updates = nil
	s.responses = nil
}

type harness struct {
	ctrl        *Controller
	store       *store.Store
	sink        *recordingSink
	recorder    *fakeRecorder
	compressor  *fakeCompressor
	transcriber *fakeTranscriber
	processor   *fakeProcessor
	resultsDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tmp := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resultsDir := filepath.Join(tmp, "results")
	s, err := store.Open(context.Background(), config.StoreConfig{
		Path:       filepath.Join(tmp, "localflow.db"),
		ResultsDir: resultsDir,
	}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Seed(context.Background(), nil, "gemma3:4b"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := &harness{
		store:       s,
		sink:        &recordingSink{},
		recorder:    &fakeRecorder{dir: tmp},
		compressor:  &fakeCompressor{},
		transcriber: &fakeTranscriber{text: "hello world"},
		processor:   &fakeProcessor{text: "Hello, world."},
		resultsDir:  resultsDir,
	}
	h.ctrl, err = NewController(Deps{
		Recorder:    h.recorder,
		Compressor:  h.compressor,
		Transcriber: h.transcriber,
		Processor:   h.processor,
		Store:       s,
		Window:      fakeWindow{},
		Clipboard:   fakeClipboard{},
		Sink:        h.sink,
	}, logger)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := h.ctrl.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return h
}

func (h *harness) send(t *testing.T, line string) {
	t.Helper()
	msg, err := protocol.Decode([]byte(line))
	if err != nil {
		t.Fatalf("decode %s: %v", line, err)
	}
	h.ctrl.Handle(context.Background(), msg)
}

func (h *harness) toggle(t *testing.T) {
	h.send(t, `{"kind":"command","action":"toggle"}`)
}

func (h *harness) modeByName(t *testing.T, name string) store.Mode {
	t.Helper()
	modes, err := h.store.ListModes(context.Background())
	if err != nil {
		t.Fatalf("list modes: %v", err)
	}
	for _, m := range modes {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("mode %q not found", name)
	return store.Mode{}
}

func equalStrings(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

func TestVoiceOnlyWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.store.CreateTextReplacement(ctx, store.TextReplacementInput{OriginalText: "world", ReplacementText: "there"}); err != nil {
		t.Fatalf("create replacement: %v", err)
	}

	h.toggle(t)
	if h.ctrl.Status() != StatusRecording || !h.recorder.recording {
		t.Fatalf("expected recording, got %s", h.ctrl.Status())
	}
	h.toggle(t)

	want := []string{"recording", "compressing", "loading_voice_model", "transcribing", "saving", "result"}
	if got := h.sink.statuses(); !equalStrings(got, want) {
		t.Fatalf("unexpected status sequence %v", got)
	}
	if h.transcriber.cfg.Name != "large-v3-turbo" || h.transcriber.cfg.Language != "en" {
		t.Fatalf("unexpected voice config %+v", h.transcriber.cfg)
	}

	results := h.sink.results()
	if len(results) != 1 {
		t.Fatalf("expected one result update, got %d", len(results))
	}
	res := results[0]
	if res.Transcription != "hello there" || res.AIResult != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Duration != 2*time.Second || res.Mode == nil || res.Mode.Name != "Voice Only" {
		t.Fatalf("unexpected result metadata %+v", res)
	}
	for _, name := range []string{"recording.wav", "recording.flac"} {
		if _, err := os.Stat(filepath.Join(h.resultsDir, res.ID.String(), name)); err != nil {
			t.Fatalf("expected %s in result dir: %v", name, err)
		}
	}
	if h.compressor.cleanups != 1 {
		t.Fatalf("expected one cleanup, got %d", h.compressor.cleanups)
	}

	stored, err := h.store.ListResults(ctx)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored result, got %d (%v)", len(stored), err)
	}

	h.toggle(t)
	if h.ctrl.Status() != StatusRecording {
		t.Fatalf("expected toggle from result to record, got %s", h.ctrl.Status())
	}
}

func TestLanguageModelWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	general := h.modeByName(t, "General")
	if _, err := h.store.UpdateMode(ctx, store.ModeUpdate{
		ID: general.ID,
		Prompt: &store.PromptInput{
			SystemPrompt:        "Fix grammar.",
			IncludeActiveWindow: true,
			IncludeClipboard:    true,
		},
	}); err != nil {
		t.Fatalf("update mode: %v", err)
	}

	h.send(t, `{"kind":"command","action":"switch_mode","data":{"mode_id":"`+general.ID.String()+`"}}`)
	if mode := h.ctrl.Mode(); mode == nil || mode.ID != general.ID {
		t.Fatalf("expected General to be cached, got %+v", mode)
	}
	if _, ok := h.sink.updates[len(h.sink.updates)-1].(protocol.Modes); !ok {
		t.Fatalf("expected modes update after switch, got %T", h.sink.updates[len(h.sink.updates)-1])
	}
	h.sink.reset()

	h.toggle(t)
	h.toggle(t)

	want := []string{"recording", "compressing", "loading_voice_model", "transcribing",
		"loading_language_model", "generating_ai_result", "saving", "result"}
	if got := h.sink.statuses(); !equalStrings(got, want) {
		t.Fatalf("unexpected status sequence %v", got)
	}

	cfg := h.processor.cfg
	if cfg.Name != "gemma3:4b" || cfg.SystemPrompt != "Fix grammar." {
		t.Fatalf("unexpected language config %+v", cfg)
	}
	if len(cfg.Examples) != 1 {
		t.Fatalf("expected seeded example to survive the update, got %+v", cfg.Examples)
	}
	if cfg.Window == nil || cfg.Window.AppName != "Code" || cfg.Clipboard != "copied" {
		t.Fatalf("expected desktop context, got window=%+v clipboard=%q", cfg.Window, cfg.Clipboard)
	}

	var partials []string
	for _, u := range h.sink.updates {
		if tr, ok := u.(protocol.Transcription); ok {
			partials = append(partials, tr.Transcription)
		}
	}
	if !equalStrings(partials, []string{"hello world", "Hello,", "Hello, world."}) {
		t.Fatalf("unexpected transcription updates %q", partials)
	}

	res := h.sink.results()[0]
	if res.AIResult == nil || *res.AIResult != "Hello, world." {
		t.Fatalf("unexpected ai result %+v", res.AIResult)
	}
}

func TestLanguageModelFailureKeepsTranscription(t *testing.T) {
	h := newHarness(t)
	general := h.modeByName(t, "General")
	h.send(t, `{"kind":"command","action":"switch_mode","data":{"mode_id":"`+general.ID.String()+`"}}`)
	h.processor.err = llm.ErrBackendOffline
	h.sink.reset()

	h.toggle(t)
	h.toggle(t)

	if h.ctrl.Status() != StatusError {
		t.Fatalf("expected error status, got %s", h.ctrl.Status())
	}
	if errs := h.sink.errors(); len(errs) != 1 || !strings.Contains(errs[0], "offline") {
		t.Fatalf("expected one backend error, got %v", errs)
	}
	results := h.sink.results()
	if len(results) != 1 || results[0].AIResult != nil || results[0].Transcription != "hello world" {
		t.Fatalf("expected raw result, got %+v", results)
	}

	h.send(t, `{"kind":"command","action":"cancel"}`)
	if h.ctrl.Status() != StatusIdle {
		t.Fatalf("expected idle after cancel, got %s", h.ctrl.Status())
	}
}

func TestCancelDiscardsRecording(t *testing.T) {
	h := newHarness(t)
	h.toggle(t)
	h.send(t, `{"kind":"command","action":"cancel"}`)

	if h.ctrl.Status() != StatusIdle || h.recorder.interrupted != 1 {
		t.Fatalf("expected interrupted idle session, got %s (%d)", h.ctrl.Status(), h.recorder.interrupted)
	}
	last := h.sink.updates[len(h.sink.updates)-2]
	if lvl, ok := last.(protocol.AudioLevelUpdate); !ok || lvl.AudioLevel != 0 {
		t.Fatalf("expected audio level reset before idle, got %+v", last)
	}
	results, err := h.store.ListResults(context.Background())
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no results, got %d (%v)", len(results), err)
	}

	h.sink.reset()
	h.send(t, `{"kind":"command","action":"cancel"}`)
	if len(h.sink.updates) != 0 {
		t.Fatalf("cancel while idle should be ignored, got %v", h.sink.updates)
	}
}

func TestEmptyOutcomesReturnToIdle(t *testing.T) {
	h := newHarness(t)
	h.transcriber.text = ""
	h.toggle(t)
	h.toggle(t)
	if h.ctrl.Status() != StatusIdle || len(h.sink.results()) != 0 {
		t.Fatalf("expected idle without result, got %s", h.ctrl.Status())
	}
	if h.compressor.cleanups != 1 {
		t.Fatalf("expected artifacts cleaned up, got %d", h.compressor.cleanups)
	}

	h.recorder.noAudio = true
	h.toggle(t)
	h.toggle(t)
	if h.ctrl.Status() != StatusIdle {
		t.Fatalf("expected idle when nothing was captured, got %s", h.ctrl.Status())
	}
}

func TestTranscriptionFailureReportsError(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("decoder crashed")
	h.toggle(t)
	h.toggle(t)
	if h.ctrl.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", h.ctrl.Status())
	}
	if errs := h.sink.errors(); len(errs) != 1 || !strings.Contains(errs[0], "decoder crashed") {
		t.Fatalf("expected transcription error update, got %v", errs)
	}
}

func TestStartFailureStaysIdle(t *testing.T) {
	h := newHarness(t)
	h.recorder.startErr = errors.New("no microphone")
	h.toggle(t)
	if h.ctrl.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", h.ctrl.Status())
	}
	if len(h.sink.statuses()) != 0 || len(h.sink.errors()) != 1 {
		t.Fatalf("expected a single error update, got %v", h.sink.updates)
	}
}

func TestRequestsRespond(t *testing.T) {
	h := newHarness(t)

	h.send(t, `{"kind":"request","channel":"database:modes:getAll","id":"1"}`)
	h.send(t, `{"kind":"request","channel":"database:textReplacements:create","id":"2","data":{"original_text":"gonna","replacement_text":"going to"}}`)
	h.send(t, `{"kind":"request","channel":"device:getAll","id":"3"}`)
	h.send(t, `{"kind":"request","channel":"database:modes:get","id":"4","data":"00000000-0000-0000-0000-000000000001"}`)

	resp := h.sink.responses
	if len(resp) != 4 {
		t.Fatalf("expected 4 responses, got %d", len(resp))
	}
	if modes, ok := resp[0].Data.([]store.Mode); !ok || len(modes) != 2 || resp[0].ID != "1" {
		t.Fatalf("unexpected modes response %+v", resp[0])
	}
	if reps, ok := resp[1].Data.([]store.TextReplacement); !ok || len(reps) != 1 || reps[0].ReplacementText != "going to" {
		t.Fatalf("unexpected replacements response %+v", resp[1])
	}
	if devices, ok := resp[2].Data.([]audio.Device); !ok || len(devices) != 2 {
		t.Fatalf("unexpected devices response %+v", resp[2])
	}
	if resp[3].Error == "" || resp[3].Data != nil || resp[3].Channel != protocol.ChannelGetMode {
		t.Fatalf("expected error response for unknown mode, got %+v", resp[3])
	}
	if len(h.sink.statuses()) != 0 {
		t.Fatalf("requests must not change status, got %v", h.sink.statuses())
	}
}

func TestSetDeviceRequiresIdle(t *testing.T) {
	h := newHarness(t)
	h.toggle(t)
	h.send(t, `{"kind":"request","channel":"device:set","id":"d1","data":{"index":1,"name":"usb","max_input_channels":1,"default_samplerate":48000,"is_default":false}}`)
	if resp := h.sink.responses[0]; resp.Error != audio.ErrDeviceBusy.Error() {
		t.Fatalf("expected busy error, got %+v", resp)
	}

	h.send(t, `{"kind":"command","action":"cancel"}`)
	h.send(t, `{"kind":"request","channel":"device:set","id":"d2","data":{"index":1,"name":"usb","max_input_channels":1,"default_samplerate":48000,"is_default":false}}`)
	if resp := h.sink.responses[1]; resp.Error != "" || h.recorder.device.Index != 1 {
		t.Fatalf("expected device change, got %+v", resp)
	}
}

func TestAudioLevelCommand(t *testing.T) {
	h := newHarness(t)
	h.send(t, `{"kind":"command","action":"audio_level"}`)
	if len(h.sink.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(h.sink.updates))
	}
	if lvl, ok := h.sink.updates[0].(protocol.AudioLevelUpdate); !ok || lvl.AudioLevel != 42 {
		t.Fatalf("unexpected audio level update %+v", h.sink.updates[0])
	}
}

func TestModeSwitchWhileRecordingAppliesToNextRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	general := h.modeByName(t, "General")
	if _, err := h.store.UpdateMode(ctx, store.ModeUpdate{
		ID:     general.ID,
		Prompt: &store.PromptInput{SystemPrompt: "Fix grammar.", IncludeActiveWindow: true},
	}); err != nil {
		t.Fatalf("update mode: %v", err)
	}

	h.toggle(t)
	h.send(t, `{"kind":"command","action":"switch_mode","data":{"mode_id":"`+general.ID.String()+`"}}`)
	if mode := h.ctrl.Mode(); mode == nil || mode.ID != general.ID {
		t.Fatalf("expected General to be cached, got %+v", mode)
	}
	h.toggle(t)

	res := h.sink.results()[0]
	if res.Mode == nil || res.Mode.Name != "Voice Only" || res.AIResult != nil {
		t.Fatalf("expected run to finish in Voice Only, got %+v", res)
	}
	if h.processor.cfg.Name != "" {
		t.Fatalf("language model should not run, got %+v", h.processor.cfg)
	}

	h.sink.reset()
	h.toggle(t)
	h.toggle(t)
	res = h.sink.results()[0]
	if res.Mode == nil || res.Mode.ID != general.ID || res.AIResult == nil {
		t.Fatalf("expected next run in General, got %+v", res)
	}
	if h.processor.cfg.Window == nil {
		t.Fatalf("expected window context for General, got %+v", h.processor.cfg)
	}
}

func TestPromptEditWhileRecordingAppliesToNextRun(t *testing.T) {
	h := newHarness(t)
	general := h.modeByName(t, "General")
	original := general.Prompt.SystemPrompt
	h.send(t, `{"kind":"command","action":"switch_mode","data":{"mode_id":"`+general.ID.String()+`"}}`)

	h.toggle(t)
	h.send(t, `{"kind":"request","channel":"database:modes:updateMode","id":"u1","data":{"id":"`+general.ID.String()+`","prompt":{"system_prompt":"Edited."}}}`)
	if resp := h.sink.responses[0]; resp.Error != "" {
		t.Fatalf("update failed: %+v", resp)
	}
	h.toggle(t)
	if h.processor.cfg.SystemPrompt != original {
		t.Fatalf("expected running session to keep its prompt, got %q", h.processor.cfg.SystemPrompt)
	}

	h.toggle(t)
	h.toggle(t)
	if h.processor.cfg.SystemPrompt != "Edited." {
		t.Fatalf("expected edited prompt on next run, got %q", h.processor.cfg.SystemPrompt)
	}
}

func TestResultTimings(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ticks := 0
	h.ctrl.clock = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 750 * time.Millisecond)
	}

	h.toggle(t)
	h.toggle(t)

	res := h.sink.results()[0]
	if res.Duration != 2*time.Second {
		t.Fatalf("expected recording duration 2s, got %s", res.Duration)
	}
	if res.ProcessingTime != 1500*time.Millisecond {
		t.Fatalf("expected processing time 1.5s, got %s", res.ProcessingTime)
	}
	stored, err := h.store.ListResults(context.Background())
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored result, got %d (%v)", len(stored), err)
	}
	if stored[0].Duration != res.Duration || stored[0].ProcessingTime != res.ProcessingTime {
		t.Fatalf("stored timings differ: %+v", stored[0])
	}
}

func TestCompressionFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.compressor.err = errors.New("encoder missing")
	h.toggle(t)
	h.toggle(t)

	want := []string{"recording", "compressing", "idle"}
	if got := h.sink.statuses(); !equalStrings(got, want) {
		t.Fatalf("unexpected status sequence %v", got)
	}
	if errs := h.sink.errors(); len(errs) != 1 || !strings.Contains(errs[0], "encoder missing") {
		t.Fatalf("expected compression error update, got %v", errs)
	}
	if h.compressor.cleanups != 1 {
		t.Fatalf("expected cleanup after failure, got %d", h.compressor.cleanups)
	}
}

func TestSaveFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	if err := os.RemoveAll(h.resultsDir); err != nil {
		t.Fatalf("remove results dir: %v", err)
	}
	if err := os.WriteFile(h.resultsDir, []byte("blocked"), 0o644); err != nil {
		t.Fatalf("block results dir: %v", err)
	}

	h.toggle(t)
	h.toggle(t)

	if h.ctrl.Status() != StatusIdle || len(h.sink.results()) != 0 {
		t.Fatalf("expected idle without result, got %s", h.ctrl.Status())
	}
	if errs := h.sink.errors(); len(errs) != 1 || !strings.Contains(errs[0], "save result") {
		t.Fatalf("expected save error update, got %v", errs)
	}
	if h.compressor.cleanups != 1 {
		t.Fatalf("expected cleanup after failure, got %d", h.compressor.cleanups)
	}
	stored, err := h.store.ListResults(context.Background())
	if err != nil || len(stored) != 0 {
		t.Fatalf("expected nothing stored, got %d (%v)", len(stored), err)
	}
}

func TestRunWithoutPinnedModeDiscardsRecording(t *testing.T) {
	h := newHarness(t)
	h.toggle(t)
	h.ctrl.run = runContext{}
	h.recorder.interruptErr = errors.New("device gone")
	h.toggle(t)

	if h.ctrl.Status() != StatusIdle || h.recorder.interrupted != 1 {
		t.Fatalf("expected interrupted idle session, got %s (%d)", h.ctrl.Status(), h.recorder.interrupted)
	}
	if errs := h.sink.errors(); len(errs) != 1 || errs[0] != store.ErrNoActiveMode.Error() {
		t.Fatalf("expected no-active-mode error, got %v", errs)
	}
	if len(h.sink.results()) != 0 {
		t.Fatalf("expected no result, got %v", h.sink.results())
	}
}
