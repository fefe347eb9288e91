// Command laith is the entry point for the Laith assistant: an HTTP API
// server plus terminal front-ends for chat, media generation and live voice.
//
// Usage:
//
//	laith [-config path] serve
//	laith [-config path] chat [prompt]
//	laith [-config path] image [-aspect 1:1] [-o out.png] prompt
//	laith [-config path] video [-aspect 16:9] [-resolution 720p] [-o out.mp4] prompt
//	laith [-config path] voice
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/laith/internal/app"
	"github.com/MrWong99/laith/internal/config"
	"github.com/MrWong99/laith/internal/observe"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// env carries what every subcommand needs.
type env struct {
	configPath string
	cfg        *config.Config
	level      *slog.LevelVar
	reg        *config.Registry
	// metrics is set by serve once telemetry is initialised.
	metrics *observe.Metrics
}

type command func(ctx context.Context, e *env, args []string) int

var commands = map[string]command{
	"serve": runServe,
	"chat":  runChat,
	"image": runImage,
	"video": runVideo,
	"voice": runVoice,
}

func run(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("laith", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: laith [-config path] <serve|chat|image|video|voice> [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	name := "serve"
	rest := fs.Args()
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "laith: unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cmd(ctx, &env{configPath: *configPath, cfg: cfg, level: level, reg: reg}, rest)
}

// loadConfig reads path. A missing file falls back to the defaults so the
// CLI works with nothing but API keys in the environment.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

// buildApp instantiates the providers and the application for e.
func buildApp(ctx context.Context, e *env, opts ...app.Option) (*app.App, error) {
	var bopts []app.BuildOption
	if e.metrics != nil {
		bopts = append(bopts, app.WithProviderMetrics(e.metrics))
		opts = append(opts, app.WithMetrics(e.metrics))
	}
	providers, err := app.BuildProviders(ctx, e.cfg, e.reg, bopts...)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	opts = append([]app.Option{app.WithLogLevel(e.level)}, opts...)
	return app.New(ctx, e.cfg, providers, opts...)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
