// Package session owns the dictation state machine. All methods except
// Status run on the protocol serving goroutine; status changes go through
// toStatus only.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ReylordDev/LocalFlow/internal/llm"
	"github.com/ReylordDev/LocalFlow/internal/protocol"
	"github.com/ReylordDev/LocalFlow/internal/store"
)

type Status string

const (
	StatusIdle                 Status = "idle"
	StatusRecording            Status = "recording"
	StatusCompressing          Status = "compressing"
	StatusLoadingVoiceModel    Status = "loading_voice_model"
	StatusTranscribing         Status = "transcribing"
	StatusLoadingLanguageModel Status = "loading_language_model"
	StatusGeneratingAIResult   Status = "generating_ai_result"
	StatusSaving               Status = "saving"
	StatusResult               Status = "result"
	StatusError                Status = "error"
)

// runContext pins what a run needs when recording starts. Mode changes made
// while recording only affect the next run.
type runContext struct {
	mode      *store.Mode
	window    *llm.Window
	clipboard string
}

type Controller struct {
	recorder    Recorder
	compressor  Compressor
	transcriber Transcriber
	processor   Processor
	store       Store
	window      WindowDetector
	clipboard   ClipboardReader
	sink        protocol.Sink
	logger      *slog.Logger
	telemetry   *telemetry
	clock       func() time.Time

	status atomic.Value
	mode   *store.Mode
	run    runContext
}

func NewController(deps Deps, logger *slog.Logger) (*Controller, error) {
	if deps.Recorder == nil || deps.Compressor == nil || deps.Transcriber == nil || deps.Processor == nil || deps.Store == nil || deps.Sink == nil {
		return nil, errors.New("session: missing collaborator")
	}
	tel, err := newTelemetry()
	if err != nil {
		return nil, fmt.Errorf("session telemetry: %w", err)
	}
	c := &Controller{
		recorder:    deps.Recorder,
		compressor:  deps.Compressor,
		transcriber: deps.Transcriber,
		processor:   deps.Processor,
		store:       deps.Store,
		window:      deps.Window,
		clipboard:   deps.Clipboard,
		sink:        deps.Sink,
		logger:      logger.With(slog.String("component", "session")),
		telemetry:   tel,
		clock:       time.Now,
	}
	c.status.Store(StatusIdle)
	return c, nil
}

// Status is safe to call from any goroutine.
func (c *Controller) Status() Status {
	return c.status.Load().(Status)
}

// Mode returns the cached active mode, if one has been loaded. A running
// session keeps the mode it started with.
func (c *Controller) Mode() *store.Mode {
	return c.mode
}

// Init loads the active mode into the cache.
func (c *Controller) Init(ctx context.Context) error {
	return c.refreshMode(ctx)
}

func (c *Controller) toStatus(s Status) {
	prev := c.Status()
	c.status.Store(s)
	c.telemetry.statusChanges.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", string(s))))
	c.logger.Debug("status changed", slog.String("from", string(prev)), slog.String("to", string(s)))
	c.sink.Emit(protocol.Status{Status: string(s)})
}

// Handle dispatches one inbound message.
func (c *Controller) Handle(ctx context.Context, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.Toggle:
		c.toggle(ctx)
	case protocol.Cancel:
		c.cancel()
	case protocol.AudioLevel:
		c.sink.Emit(protocol.AudioLevelUpdate{AudioLevel: c.recorder.AudioLevel()})
	case protocol.SwitchMode:
		c.switchMode(ctx, m.ModeID)
	case protocol.Request:
		data, err := c.handleRequest(ctx, m)
		if err != nil {
			c.logger.Warn("request failed",
				slog.String("channel", string(m.Channel())),
				slog.String("id", m.RequestID()),
				slogError(err))
		}
		c.sink.Respond(protocol.Respond(m, data, err))
	default:
		c.logger.Warn("unhandled message", slog.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (c *Controller) toggle(ctx context.Context) {
	switch status := c.Status(); status {
	case StatusIdle, StatusResult, StatusError:
		c.startRecording(ctx)
	case StatusRecording:
		c.runWorkflow(ctx)
	default:
		c.logger.Warn("invalid state for toggle", slog.String("status", string(status)))
	}
}

func (c *Controller) startRecording(ctx context.Context) {
	if err := c.refreshMode(ctx); err != nil {
		c.emitError(fmt.Errorf("load active mode: %w", err))
		if c.Status() != StatusIdle {
			c.toStatus(StatusIdle)
		}
		return
	}
	run := c.captureRunContext(ctx, *c.mode)

	if err := c.recorder.Start(ctx); err != nil {
		c.emitError(fmt.Errorf("start recording: %w", err))
		if c.Status() != StatusIdle {
			c.toStatus(StatusIdle)
		}
		return
	}
	c.run = run
	c.logger.Info("recording started", slog.String("mode", run.mode.Name))
	c.toStatus(StatusRecording)
}

func (c *Controller) captureRunContext(ctx context.Context, mode store.Mode) runContext {
	dc := runContext{mode: &mode}
	if !mode.UseLanguageModel || mode.Prompt == nil {
		return dc
	}
	if mode.Prompt.IncludeActiveWindow && c.window != nil {
		win, err := c.window.ActiveWindow(ctx)
		if err != nil {
			c.logger.Warn("active window unavailable", slogError(err))
		} else {
			dc.window = &llm.Window{Title: win.Title, AppName: win.AppName}
		}
	}
	if mode.Prompt.IncludeClipboard && c.clipboard != nil {
		text, err := c.clipboard.Text(ctx)
		if err != nil {
			c.logger.Warn("clipboard unavailable", slogError(err))
		} else {
			dc.clipboard = text
		}
	}
	return dc
}

func (c *Controller) cancel() {
	switch status := c.Status(); status {
	case StatusRecording:
		if err := c.recorder.Interrupt(); err != nil {
			c.logger.Warn("interrupt recording failed", slogError(err))
		}
		c.run = runContext{}
		c.sink.Emit(protocol.AudioLevelUpdate{AudioLevel: 0})
		c.toStatus(StatusIdle)
	case StatusResult, StatusError:
		c.sink.Emit(protocol.AudioLevelUpdate{AudioLevel: 0})
		c.toStatus(StatusIdle)
	default:
		c.logger.Warn("invalid state for cancel", slog.String("status", string(status)))
	}
}

func (c *Controller) switchMode(ctx context.Context, id uuid.UUID) {
	if err := c.store.ActivateMode(ctx, id); err != nil {
		c.emitError(fmt.Errorf("switch mode: %w", err))
		return
	}
	if err := c.refreshMode(ctx); err != nil {
		c.logger.Warn("refresh active mode failed", slogError(err))
	}
	modes, err := c.store.ListModes(ctx)
	if err != nil {
		c.emitError(fmt.Errorf("list modes: %w", err))
		return
	}
	c.logger.Info("mode switched", slog.String("mode_id", id.String()))
	c.sink.Emit(protocol.Modes{Modes: nonNil(modes)})
}

func (c *Controller) refreshMode(ctx context.Context) error {
	mode, err := c.store.ActiveMode(ctx)
	if err != nil {
		return err
	}
	c.mode = &mode
	return nil
}

func (c *Controller) emitError(err error) {
	c.logger.Warn("session error", slog.String("status", string(c.Status())), slogError(err))
	c.sink.Emit(protocol.ErrorUpdate{Error: err.Error()})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
