// Package app wires all Laith subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the chat and media
// services, the HTTP API and the readiness checks from already-constructed
// providers; Run serves HTTP until the context is cancelled; Shutdown drains
// and tears everything down in order. ApplyConfig hot-reloads the settings
// that can change without a restart.
//
// For testing, inject a listener, metrics or a log level via functional
// options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/laith/internal/api"
	"github.com/MrWong99/laith/internal/chat"
	"github.com/MrWong99/laith/internal/config"
	"github.com/MrWong99/laith/internal/health"
	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/internal/studio"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers
	metrics   *observe.Metrics
	promHTTP  http.Handler
	level     *slog.LevelVar

	chat   *chat.Service
	studio *studio.Service
	health *health.Handler
	api    *api.Server

	listener net.Listener
	srv      *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promHTTP = h }
}

// WithLogLevel hands the app the level variable of the process logger so
// that config reloads can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithListener serves on ln instead of listening on server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithCloser registers fn to run during Shutdown, after the HTTP server has
// stopped.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App from cfg and the providers built by [BuildProviders].
// It does not start listening; call Run for that.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.Chat == nil {
		return nil, errors.New("app: a chat provider is required")
	}
	a := &App{providers: providers}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	a.level.Set(SlogLevel(cfg.Server.LogLevel))

	a.chat = chat.New(chat.Config{
		Provider:     providers.Chat,
		ProviderName: providers.ChatName,
		Metrics:      a.metrics,
	})
	a.studio = studio.New(studio.Config{
		Images:        providers.Images,
		ImageProvider: providers.ImageName,
		Videos:        providers.Videos,
		VideoProvider: providers.VideoName,
		Metrics:       a.metrics,
	})
	a.health = health.New(a.checkers()...)
	a.api = api.New(api.Config{
		Chat:           a.chat,
		Studio:         a.studio,
		Health:         a.health,
		Metrics:        a.metrics,
		MetricsHandler: a.promHTTP,
		Defaults:       defaultsFrom(cfg),
	})

	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	slog.Info("app initialised",
		"chat", providers.ChatName,
		"image", providers.ImageName,
		"video", providers.VideoName,
		"live", providers.LiveName,
	)
	return a, nil
}

// checkers builds the readiness checks. Chat is required; the other
// capabilities only degrade readiness.
func (a *App) checkers() []health.Checker {
	p := a.providers
	always := func() bool { return true }
	chatHealthy := p.ChatHealthy
	if chatHealthy == nil {
		chatHealthy = always
	}
	cs := []health.Checker{health.BreakerCheck("chat", false, chatHealthy)}
	if p.Images != nil {
		h := p.ImageHealthy
		if h == nil {
			h = always
		}
		cs = append(cs, health.BreakerCheck("image", true, h))
	}
	if p.Videos != nil {
		cs = append(cs, health.BreakerCheck("video", true, always))
	}
	return cs
}

func defaultsFrom(cfg *config.Config) api.Defaults {
	return api.Defaults{User: cfg.Assistant.User(), Settings: cfg.Assistant.Settings()}
}

// Config returns the config currently in effect.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// Chat returns the chat service.
func (a *App) Chat() *chat.Service { return a.chat }

// Studio returns the media service.
func (a *App) Studio() *studio.Service { return a.studio }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. A cancelled ctx is a clean exit; the caller then calls Shutdown.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config()
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", cfg.Server.ListenAddr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = a.srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.Serve(ln)
		}
		errCh <- err
	}()
	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ApplyConfig installs a reloaded config. Log level and assistant defaults
// take effect immediately, voice settings apply to the next voice session,
// and everything else is reported as requiring a restart.
func (a *App) ApplyConfig(next *config.Config) config.ConfigDiff {
	prev := a.cfg.Load()
	d := config.Diff(prev, next)
	if d.Empty() {
		return d
	}

	if d.LogLevelChanged {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AssistantChanged {
		a.api.SetDefaults(defaultsFrom(next))
		slog.Info("assistant defaults reloaded",
			"user", next.Assistant.UserName,
			"deep_thinking", next.Assistant.DeepThinking)
	}
	if d.VoiceChanged {
		slog.Info("voice settings reloaded", "voice", next.Voice.VoiceName)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
		// Keep sections that need a restart at their running values so a
		// later diff still reports them.
		merged := *next
		merged.Server = prev.Server
		merged.Server.LogLevel = next.Server.LogLevel
		merged.Providers = prev.Providers
		next = &merged
	}
	a.cfg.Store(next)
	return d
}

// Shutdown tears down all subsystems. Readiness fails first, then in-flight
// HTTP requests get until ctx expires to finish, then the closers run in
// order. If ctx expires, remaining closers are skipped and the context error
// is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining()

		if err := a.srv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel converts a config log level to a [slog.Level].
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
