// Package runtime wires the dictation backend together and runs it until the
// host closes stdin or the process is signalled.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ReylordDev/LocalFlow/internal/bus"
	"github.com/ReylordDev/LocalFlow/internal/config"
	"github.com/ReylordDev/LocalFlow/internal/llm"
	"github.com/ReylordDev/LocalFlow/internal/natsserver"
	"github.com/ReylordDev/LocalFlow/internal/protocol"
	"github.com/ReylordDev/LocalFlow/internal/session"
	"github.com/ReylordDev/LocalFlow/internal/store"
)

const (
	initStep        = "init"
	shutdownTimeout = 10 * time.Second
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	ready  atomic.Bool
	status func() session.Status
	bus    *bus.Client
}

// New builds a runtime that reads protocol lines from in and writes them to
// out.
func New(cfg config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		in:     in,
		out:    out,
	}
}

// Start initialises every component, serves the protocol and shuts down
// cleanly when input ends or ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	writer := protocol.NewWriter(r.out, r.logger)
	var sink protocol.Sink = writer
	sink.Emit(protocol.NewProgress(initStep, protocol.ProgressStart))

	if r.cfg.Bus.Enabled {
		mirror, closeBus := r.startBus(ctx)
		defer closeBus()
		if mirror != nil {
			sink = protocol.Fanout{writer, mirror}
		}
	}

	ctrl, closeComponents, err := r.build(ctx, sink)
	if err != nil {
		if errors.Is(err, ErrBackendOffline) {
			sink.Emit(protocol.ErrorUpdate{Error: err.Error()})
		} else {
			sink.Emit(protocol.NewException(err))
		}
		sink.Emit(protocol.NewProgress(initStep, protocol.ProgressError))
		return err
	}
	defer closeComponents()
	r.status = ctrl.Status
	r.ready.Store(true)
	sink.Emit(protocol.NewProgress(initStep, protocol.ProgressComplete))
	r.logger.Info("runtime started", slog.String("status", string(ctrl.Status())))

	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.HTTP.Enabled {
		srv := r.httpServer(metricsHandler)
		g.Go(func() error {
			r.logger.Info("http server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		// Input ending is the normal way to stop; it takes the HTTP server down too.
		defer cancel()
		return protocol.Serve(gctx, r.in, sink, ctrl.Handle, r.logger)
	})

	err = g.Wait()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	return err
}

// build opens the store and constructs the session controller. The returned
// func releases everything build acquired.
func (r *Runtime) build(ctx context.Context, sink protocol.Sink) (*session.Controller, func(), error) {
	gen, err := llm.NewGenerator(r.cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	processor := llm.NewProcessor(gen, llm.OptionsFromConfig(r.cfg.LLM), r.logger)
	models, err := checkBackend(ctx, r.cfg.LLM, processor, r.logger)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Seed(ctx, models, r.cfg.LLM.DefaultModel); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("seed store: %w", err)
	}

	recorder, err := newRecorder(r.cfg, r.logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("audio: %w", err)
	}
	compressor, err := newCompressor(r.cfg.Compression, r.logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("compression: %w", err)
	}
	transcriber, err := newTranscriber(r.cfg.STT, r.logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("stt: %w", err)
	}
	window, clipboard, err := newDesktop(r.cfg.Desktop)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("desktop: %w", err)
	}

	ctrl, err := session.NewController(session.Deps{
		Recorder:    recorder,
		Compressor:  compressor,
		Transcriber: transcriber,
		Processor:   processor,
		Store:       st,
		Window:      window,
		Clipboard:   clipboard,
		Sink:        sink,
	}, r.logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if err := ctrl.Init(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("load active mode: %w", err)
	}

	release := func() {
		if err := recorder.Interrupt(); err != nil {
			r.logger.Warn("interrupt recording failed", slog.String("error", err.Error()))
		}
		compressor.Cleanup()
		if err := st.Close(); err != nil {
			r.logger.Warn("store close failed", slog.String("error", err.Error()))
		}
	}
	return ctrl, release, nil
}

// startBus brings up the optional NATS mirror. Failures are logged and the
// daemon continues without it.
func (r *Runtime) startBus(ctx context.Context) (*bus.Mirror, func()) {
	cfg := r.cfg.Bus
	embedded, err := natsserver.Start(cfg, r.logger)
	if err != nil {
		r.logger.Warn("embedded NATS server unavailable", slog.String("error", err.Error()))
		return nil, func() {}
	}
	if embedded != nil {
		cfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, cfg, r.logger)
	if err != nil {
		r.logger.Warn("bus mirror disabled", slog.String("error", err.Error()))
		embedded.Shutdown()
		return nil, func() {}
	}
	r.bus = client
	return bus.NewMirror(client, cfg.SubjectPrefix, r.logger), func() {
		client.Close()
		embedded.Shutdown()
	}
}

func (r *Runtime) httpServer(metrics http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return &http.Server{
		Addr:              net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !r.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	if r.cfg.Bus.Enabled && !r.bus.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	status := "ready"
	if r.status != nil {
		status = string(r.status())
	}
	_, _ = w.Write([]byte(status))
}
