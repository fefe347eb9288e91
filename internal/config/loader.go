package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/laith/internal/chat"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":  {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"image": {"gemini", "openai"},
	"video": {"gemini"},
	"live":  {"gemini"},
}

// apiKeyEnv lists the environment variables consulted, in order, when a
// provider entry leaves api_key empty.
var apiKeyEnv = map[string][]string{
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_API_KEY"},
	"mistral":   {"MISTRAL_API_KEY"},
	"groq":      {"GROQ_API_KEY"},
}

// ResolveAPIKey returns e.APIKey, or the first non-empty environment variable
// conventionally holding the key for e.Name.
func ResolveAPIKey(e ProviderEntry) string {
	if e.APIKey != "" {
		return e.APIKey
	}
	for _, env := range apiKeyEnv[e.Name] {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("image", cfg.Providers.Image.Name)
	validateProviderName("video", cfg.Providers.Video.Name)
	validateProviderName("live", cfg.Providers.Live.Name)

	for i, fb := range cfg.Providers.ChatFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.chat_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("chat", fb.Name)
	}
	for i, fb := range cfg.Providers.ImageFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.image_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("image", fb.Name)
	}
	if _, err := cfg.Providers.Video.OptionDuration("poll_interval"); err != nil {
		errs = append(errs, fmt.Errorf("providers.video.%w", err))
	}

	if f := cfg.Voice.Capture.Format; f != "" && !f.IsValid() {
		errs = append(errs, fmt.Errorf("voice.capture.format %q is invalid; valid values: f32le, s16le", f))
	}
	if len(cfg.Voice.Capture.Args) > 0 && cfg.Voice.Capture.Command == "" {
		errs = append(errs, errors.New("voice.capture.args requires voice.capture.command"))
	}
	if len(cfg.Voice.Playback.Args) > 0 && cfg.Voice.Playback.Command == "" {
		errs = append(errs, errors.New("voice.playback.args requires voice.playback.command"))
	}

	a := cfg.Assistant
	if g := a.UserGender; g != "" && g != chat.GenderMale && g != chat.GenderFemale {
		errs = append(errs, fmt.Errorf("assistant.user_gender %q is invalid; valid values: male, female", g))
	}
	if a.Creativity != nil && (*a.Creativity < 0 || *a.Creativity > 2) {
		errs = append(errs, fmt.Errorf("assistant.creativity %.2f is out of range [0, 2]", *a.Creativity))
	}
	if a.ThinkingBudget < 0 {
		errs = append(errs, fmt.Errorf("assistant.thinking_budget %d must not be negative", a.ThinkingBudget))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
