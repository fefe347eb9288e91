package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/laith/internal/config"
	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/internal/resilience"
	"github.com/MrWong99/laith/pkg/provider/live"
	"github.com/MrWong99/laith/pkg/provider/llm"
	"github.com/MrWong99/laith/pkg/provider/media"
)

// Providers holds one interface value per capability. Nil means the
// capability is not configured.
type Providers struct {
	Chat     llm.Provider
	ChatName string
	// ChatHealthy reports whether any chat backend would accept a call.
	ChatHealthy func() bool

	Images    media.ImageProvider
	ImageName string
	// ImageHealthy reports whether any image backend would accept a call.
	ImageHealthy func() bool

	Videos    media.VideoProvider
	VideoName string

	Live     live.Provider
	LiveName string
}

// BuildOption configures [BuildProviders].
type BuildOption func(*buildOptions)

type buildOptions struct {
	metrics *observe.Metrics
}

// WithProviderMetrics counts circuit breaker transitions on m.
func WithProviderMetrics(m *observe.Metrics) BuildOption {
	return func(o *buildOptions) { o.metrics = m }
}

// fallbackConfig returns the breaker settings for the kind fallback group.
func (o buildOptions) fallbackConfig(kind string) resilience.FallbackConfig {
	var fb resilience.FallbackConfig
	if o.metrics != nil {
		m := o.metrics
		fb.CircuitBreaker.OnStateChange = func(name string, _, to resilience.State) {
			m.RecordBreakerTransition(context.Background(), name, kind, to.String())
		}
	}
	return fb
}

// BuildProviders instantiates every provider named in cfg through reg.
// Chat and image backends are wrapped in fallback groups with one circuit
// breaker per backend. A failing fallback is skipped with a warning; a
// failing primary is an error. Capabilities whose provider is not
// registered are left nil.
func BuildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...BuildOption) (*Providers, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	ps := &Providers{}

	chatPrimary, err := reg.CreateChat(ctx, withKey(cfg.Providers.Chat))
	if err != nil {
		return nil, fmt.Errorf("create chat provider %q: %w", cfg.Providers.Chat.Name, err)
	}
	chatGroup := resilience.NewLLMFallback(chatPrimary, cfg.Providers.Chat.Name, o.fallbackConfig("chat"))
	for i, e := range cfg.Providers.ChatFallbacks {
		p, err := reg.CreateChat(ctx, withKey(e))
		if err != nil {
			slog.Warn("skipping chat fallback", "index", i, "name", e.Name, "err", err)
			continue
		}
		chatGroup.AddFallback(e.Name, p)
	}
	ps.Chat, ps.ChatName, ps.ChatHealthy = chatGroup, cfg.Providers.Chat.Name, chatGroup.Healthy
	slog.Info("provider created", "kind", "chat", "name", ps.ChatName, "fallbacks", len(cfg.Providers.ChatFallbacks))

	img, err := create(ctx, reg.CreateImage, "image", cfg.Providers.Image)
	if err != nil {
		return nil, err
	}
	if img != nil {
		group := resilience.NewImageFallback(img, cfg.Providers.Image.Name, o.fallbackConfig("image"))
		for i, e := range cfg.Providers.ImageFallbacks {
			p, err := reg.CreateImage(ctx, withKey(e))
			if err != nil {
				slog.Warn("skipping image fallback", "index", i, "name", e.Name, "err", err)
				continue
			}
			group.AddFallback(e.Name, p)
		}
		ps.Images, ps.ImageName, ps.ImageHealthy = group, cfg.Providers.Image.Name, group.Healthy
	}

	vid, err := create(ctx, reg.CreateVideo, "video", cfg.Providers.Video)
	if err != nil {
		return nil, err
	}
	if vid != nil {
		ps.Videos, ps.VideoName = vid, cfg.Providers.Video.Name
	}

	lp, err := create(ctx, reg.CreateLive, "live", cfg.Providers.Live)
	if err != nil {
		return nil, err
	}
	if lp != nil {
		ps.Live, ps.LiveName = lp, cfg.Providers.Live.Name
	}
	return ps, nil
}

// create builds an optional provider. An unregistered name yields the zero
// value and no error.
func create[T any](ctx context.Context, fn func(context.Context, config.ProviderEntry) (T, error), kind string, e config.ProviderEntry) (T, error) {
	var zero T
	if e.Name == "" {
		return zero, nil
	}
	p, err := fn(ctx, withKey(e))
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Debug("provider not available, skipping", "kind", kind, "name", e.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", e.Name)
	return p, nil
}

// withKey fills an empty APIKey from the provider's environment variable.
func withKey(e config.ProviderEntry) config.ProviderEntry {
	e.APIKey = config.ResolveAPIKey(e)
	return e
}
