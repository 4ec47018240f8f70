package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ReylordDev/LocalFlow/internal/config"
	"github.com/ReylordDev/LocalFlow/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults only when empty)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// stdout carries the protocol, so nothing else may write to it.
	bootstrap := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		bootstrap.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, closeLog, err := runtime.NewLogger(cfg.Telemetry, os.Stderr)
	if err != nil {
		bootstrap.Error("failed to set up logging", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger = logger.With(slog.String("runtime", cfg.RuntimeName))
	logger.Info("starting localflowd", slog.String("version", version), slog.String("environment", cfg.Environment))

	rt := runtime.New(cfg, logger, os.Stdin, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}

	logger.Info("shutdown complete")
	closeLog()
}
