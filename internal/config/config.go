// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for Laith.
package config

import (
	"fmt"
	"time"

	"github.com/MrWong99/laith/internal/chat"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SampleFormat is the raw encoding a capture command writes to stdout.
type SampleFormat string

const (
	FormatF32LE SampleFormat = "f32le"
	FormatS16LE SampleFormat = "s16le"
)

// IsValid reports whether f is a supported sample format.
func (f SampleFormat) IsValid() bool {
	return f == FormatF32LE || f == FormatS16LE
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultVoiceName       = "Zephyr"
	DefaultCreativity      = 0.7
	DefaultProvider        = "gemini"
)

// Config is the root configuration structure for Laith.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig holds network and logging settings for the HTTP API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the backend for each capability. Each entry names a
// provider registered in the [Registry].
type ProvidersConfig struct {
	Chat           ProviderEntry   `yaml:"chat"`
	ChatFallbacks  []ProviderEntry `yaml:"chat_fallbacks"`
	Image          ProviderEntry   `yaml:"image"`
	ImageFallbacks []ProviderEntry `yaml:"image_fallbacks"`
	Video          ProviderEntry   `yaml:"video"`
	Live           ProviderEntry   `yaml:"live"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty, the provider's
	// conventional environment variable is consulted (see [ResolveAPIKey]).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] as a string, or "" when absent.
func (e ProviderEntry) OptionString(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// OptionDuration parses Options[key] with [time.ParseDuration]. Absent keys
// yield zero.
func (e ProviderEntry) OptionDuration(key string) (time.Duration, error) {
	s := e.OptionString(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("options.%s: %w", key, err)
	}
	return d, nil
}

// VoiceConfig configures local voice sessions.
type VoiceConfig struct {
	// VoiceName is the prebuilt voice the live model speaks with.
	VoiceName string `yaml:"voice_name"`

	// Capture configures the microphone.
	Capture CaptureConfig `yaml:"capture"`

	// Playback configures the speaker.
	Playback PlaybackConfig `yaml:"playback"`

	// Transcripts asks the live model for input and output transcriptions and
	// prints them.
	Transcripts bool `yaml:"transcripts"`
}

// CaptureConfig selects how microphone audio is read.
type CaptureConfig struct {
	// Command overrides the capture executable. Empty uses ffmpeg with the
	// platform's default input device.
	Command string `yaml:"command"`

	// Args replaces the default arguments of Command.
	Args []string `yaml:"args"`

	// Format is the raw sample encoding Command writes. Default: f32le.
	Format SampleFormat `yaml:"format"`
}

// PlaybackConfig selects where model audio is played.
type PlaybackConfig struct {
	// Command is the player executable fed raw s16le on stdin. Default: ffplay.
	Command string `yaml:"command"`

	// Args replaces the default arguments of Command.
	Args []string `yaml:"args"`

	// RecordPath, when set, writes the model's audio to a WAV file instead
	// of playing it.
	RecordPath string `yaml:"record_path"`
}

// AssistantConfig holds the default persona addressee and chat settings.
type AssistantConfig struct {
	UserName   string `yaml:"user_name"`
	UserGender string `yaml:"user_gender"`

	// SearchEnabled grounds answers in web search. Default: true.
	SearchEnabled *bool `yaml:"search_enabled"`

	// DeepThinking trades creativity for a thinking budget.
	DeepThinking bool `yaml:"deep_thinking"`

	// Creativity is the sampling temperature in [0, 2]. Default: 0.7.
	Creativity *float64 `yaml:"creativity"`

	// ThinkingBudget overrides the deep-thinking token budget.
	ThinkingBudget int `yaml:"thinking_budget"`
}

// User returns the configured addressee.
func (a AssistantConfig) User() chat.User {
	return chat.User{Name: a.UserName, Gender: a.UserGender}
}

// Settings returns the configured chat settings.
func (a AssistantConfig) Settings() chat.Settings {
	s := chat.Settings{
		Search:         true,
		DeepThinking:   a.DeepThinking,
		Creativity:     DefaultCreativity,
		ThinkingBudget: a.ThinkingBudget,
	}
	if a.SearchEnabled != nil {
		s.Search = *a.SearchEnabled
	}
	if a.Creativity != nil {
		s.Creativity = *a.Creativity
	}
	return s
}

// ApplyDefaults fills unset fields with their defaults. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	for _, e := range []*ProviderEntry{&cfg.Providers.Chat, &cfg.Providers.Image, &cfg.Providers.Video, &cfg.Providers.Live} {
		if e.Name == "" {
			e.Name = DefaultProvider
		}
	}
	if cfg.Voice.VoiceName == "" {
		cfg.Voice.VoiceName = DefaultVoiceName
	}
	if cfg.Voice.Capture.Format == "" {
		cfg.Voice.Capture.Format = FormatF32LE
	}
	if cfg.Assistant.UserGender == "" {
		cfg.Assistant.UserGender = chat.GenderMale
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
