package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/laith/internal/app"
	"github.com/MrWong99/laith/internal/config"
	"github.com/MrWong99/laith/internal/observe"
)

func runServe(ctx context.Context, e *env, _ []string) int {
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version, RuntimeMetrics: true})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	e.metrics = metrics
	application, err := buildApp(ctx, e, app.WithMetricsHandler(tel.Handler()))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if _, statErr := os.Stat(e.configPath); statErr == nil {
		w, err := config.NewWatcher(e.configPath, func(_, next *config.Config) {
			application.ApplyConfig(next)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			go w.Run(ctx)
			go reloadOnHangup(ctx, w)
		}
	}

	printStartupSummary(e.cfg)
	slog.Info("laith starting",
		"version", version,
		"listen_addr", e.cfg.Server.ListenAddr,
		"log_level", e.cfg.Server.LogLevel,
	)

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), application.Config().Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// reloadOnHangup forces a config reload on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := w.Reload(); errors.Is(err, config.ErrUnchanged) {
				slog.Info("config: SIGHUP, file unchanged")
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("+---------------------------------------+")
	fmt.Println("|         Laith - startup summary       |")
	fmt.Println("+---------------------------------------+")
	printProvider("Chat", cfg.Providers.Chat.Name, cfg.Providers.Chat.Model)
	fmt.Printf("|  %-12s    : %-19d |\n", "Fallbacks", len(cfg.Providers.ChatFallbacks))
	printProvider("Image", cfg.Providers.Image.Name, cfg.Providers.Image.Model)
	printProvider("Video", cfg.Providers.Video.Name, cfg.Providers.Video.Model)
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	printProvider("Listen addr", cfg.Server.ListenAddr, "")
	fmt.Println("+---------------------------------------+")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("|  %-12s    : %-19s |\n", kind, value)
}
