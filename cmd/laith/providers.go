package main

import (
	"context"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/laith/internal/config"
	"github.com/MrWong99/laith/pkg/provider/live"
	geminilive "github.com/MrWong99/laith/pkg/provider/live/gemini"
	"github.com/MrWong99/laith/pkg/provider/llm"
	"github.com/MrWong99/laith/pkg/provider/llm/anyllm"
	geminillm "github.com/MrWong99/laith/pkg/provider/llm/gemini"
	oaillm "github.com/MrWong99/laith/pkg/provider/llm/openai"
	"github.com/MrWong99/laith/pkg/provider/media"
	geminimedia "github.com/MrWong99/laith/pkg/provider/media/gemini"
	oaimedia "github.com/MrWong99/laith/pkg/provider/media/openai"
)

// defaultOpenAIChatModel is used when an openai chat entry names no model.
const defaultOpenAIChatModel = "gpt-4o-mini"

// anyllmProviders are chat backends served through any-llm-go. They share
// the same pattern: optional APIKey + optional BaseURL.
var anyllmProviders = []string{"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("gemini", func(ctx context.Context, e config.ProviderEntry) (llm.Provider, error) {
		var opts []geminillm.Option
		if e.Model != "" {
			opts = append(opts, geminillm.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, geminillm.WithBaseURL(e.BaseURL))
		}
		return geminillm.New(ctx, e.APIKey, opts...)
	})

	reg.RegisterChat("openai", func(_ context.Context, e config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if e.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(e.BaseURL))
		}
		if org := e.OptionString("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d, err := e.OptionDuration("timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		model := e.Model
		if model == "" {
			model = defaultOpenAIChatModel
		}
		return oaillm.New(e.APIKey, model, opts...)
	})

	for _, name := range anyllmProviders {
		reg.RegisterChat(name, func(_ context.Context, e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			if e.Model == "" {
				return nil, fmt.Errorf("%s: model is required", name)
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── Image + video ─────────────────────────────────────────────────────────

	newGeminiMedia := func(ctx context.Context, e config.ProviderEntry) (*geminimedia.Provider, error) {
		var opts []geminimedia.Option
		if e.BaseURL != "" {
			opts = append(opts, geminimedia.WithBaseURL(e.BaseURL))
		}
		if m := e.OptionString("image_model"); m != "" {
			opts = append(opts, geminimedia.WithImageModel(m))
		}
		if m := e.OptionString("video_model"); m != "" {
			opts = append(opts, geminimedia.WithVideoModel(m))
		}
		d, err := e.OptionDuration("poll_interval")
		if err != nil {
			return nil, err
		}
		if d > 0 {
			opts = append(opts, geminimedia.WithPollInterval(d))
		}
		return geminimedia.New(ctx, e.APIKey, opts...)
	}

	reg.RegisterImage("gemini", func(ctx context.Context, e config.ProviderEntry) (media.ImageProvider, error) {
		if e.Model != "" && e.OptionString("image_model") == "" {
			e.Options = withOption(e.Options, "image_model", e.Model)
		}
		return newGeminiMedia(ctx, e)
	})

	reg.RegisterVideo("gemini", func(ctx context.Context, e config.ProviderEntry) (media.VideoProvider, error) {
		if e.Model != "" && e.OptionString("video_model") == "" {
			e.Options = withOption(e.Options, "video_model", e.Model)
		}
		return newGeminiMedia(ctx, e)
	})

	reg.RegisterImage("openai", func(_ context.Context, e config.ProviderEntry) (media.ImageProvider, error) {
		var opts []oaimedia.Option
		if e.BaseURL != "" {
			opts = append(opts, oaimedia.WithBaseURL(e.BaseURL))
		}
		if org := e.OptionString("organization"); org != "" {
			opts = append(opts, oaimedia.WithOrganization(org))
		}
		if d, err := e.OptionDuration("timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, oaimedia.WithTimeout(d))
		}
		return oaimedia.New(e.APIKey, e.Model, opts...)
	})

	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini", func(_ context.Context, e config.ProviderEntry) (live.Provider, error) {
		if e.APIKey == "" {
			return nil, fmt.Errorf("gemini live: api key is required")
		}
		var opts []geminilive.Option
		if e.Model != "" {
			opts = append(opts, geminilive.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(e.BaseURL))
		}
		return geminilive.New(e.APIKey, opts...), nil
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// withOption returns a copy of opts with key set to value.
func withOption(opts map[string]any, key, value string) map[string]any {
	out := make(map[string]any, len(opts)+1)
	for k, v := range opts {
		out[k] = v
	}
	out[key] = value
	return out
}
