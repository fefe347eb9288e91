// Package api exposes chat, image and video generation over HTTP.
//
// Routes:
//
//	POST /v1/chat      streamed reply as text/event-stream
//	POST /v1/images    JSON {"data_url": ...}
//	POST /v1/videos    video bytes, or progress events with ?stream=1
//	GET  /v1/settings  current assistant defaults
//	GET  /healthz, GET /readyz, GET /metrics
//
// Every route is wrapped with [observe.Middleware].
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/MrWong99/laith/internal/chat"
	"github.com/MrWong99/laith/internal/health"
	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/internal/studio"
	"github.com/MrWong99/laith/pkg/provider/llm"
	"github.com/MrWong99/laith/pkg/provider/media"
)

// DefaultMaxBodyBytes bounds request bodies. Chat requests may carry an
// inline image attachment.
const DefaultMaxBodyBytes = 20 << 20

// Defaults are applied to chat requests that omit the user or settings.
type Defaults struct {
	User     chat.User     `json:"user"`
	Settings chat.Settings `json:"settings"`
}

// Config wires a [Server].
type Config struct {
	// Chat serves /v1/chat. Nil answers 503.
	Chat *chat.Service

	// Studio serves /v1/images and /v1/videos.
	Studio *studio.Service

	// Health serves /healthz and /readyz. Nil registers a handler without
	// checkers.
	Health *health.Handler

	// Metrics instruments the middleware. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MetricsHandler serves /metrics. Nil uses [observe.MetricsHandler].
	MetricsHandler http.Handler

	// Defaults seeds the assistant defaults.
	Defaults Defaults

	// MaxBodyBytes overrides [DefaultMaxBodyBytes].
	MaxBodyBytes int64
}

// Server owns the HTTP routes. It is safe for concurrent use.
type Server struct {
	cfg      Config
	defaults atomic.Pointer[Defaults]
	handler  http.Handler
}

// New builds a Server from cfg.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = observe.MetricsHandler()
	}
	if cfg.Studio == nil {
		cfg.Studio = studio.New(studio.Config{Metrics: cfg.Metrics})
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{cfg: cfg}
	d := cfg.Defaults
	s.defaults.Store(&d)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/images", s.handleImage)
	mux.HandleFunc("POST /v1/videos", s.handleVideo)
	mux.HandleFunc("GET /v1/settings", s.handleSettings)
	cfg.Health.Register(mux)
	mux.Handle("GET /metrics", cfg.MetricsHandler)
	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// SetDefaults replaces the assistant defaults for subsequent requests.
func (s *Server) SetDefaults(d Defaults) { s.defaults.Store(&d) }

// CurrentDefaults returns the assistant defaults in effect.
func (s *Server) CurrentDefaults() Defaults { return *s.defaults.Load() }

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.CurrentDefaults())
}

// errBadRequest marks a malformed request body.
var errBadRequest = errors.New("invalid request body")

type errorBody struct {
	Error string `json:"error"`
}

// decode reads a JSON body of at most MaxBodyBytes into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, chat.ErrEmptyPrompt),
		errors.Is(err, studio.ErrEmptyPrompt),
		errors.Is(err, media.ErrInvalidAspect):
		return http.StatusBadRequest
	case errors.Is(err, studio.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, media.ErrNoImage),
		errors.Is(err, media.ErrNoVideo),
		errors.Is(err, llm.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// fail logs err and writes it as a JSON error body.
func fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody reads the response.
		return
	}
	lvl := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}
	observe.Logger(r.Context()).Log(r.Context(), lvl, "request failed",
		"path", r.URL.Path, "status", status, "err", err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
