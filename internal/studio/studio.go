// Package studio is the application-facing entry point for image and video
// generation. It validates requests, delegates to the configured media
// providers and records latency, outcome and a trace span for every call.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/pkg/provider/media"
)

var (
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("studio: prompt must not be empty")

	// ErrUnavailable is returned when no provider is configured for the
	// requested kind of media.
	ErrUnavailable = errors.New("studio: no provider configured")
)

// Config wires a [Service].
type Config struct {
	// Images generates pictures. Nil disables image generation.
	Images media.ImageProvider
	// ImageProvider names Images in metrics and logs.
	ImageProvider string

	// Videos generates clips. Nil disables video generation.
	Videos media.VideoProvider
	// VideoProvider names Videos in metrics and logs.
	VideoProvider string

	// Metrics receives instrumentation. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Service generates media. It is safe for concurrent use.
type Service struct {
	cfg Config
}

// New returns a Service for cfg.
func New(cfg Config) *Service {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Service{cfg: cfg}
}

// CanImage reports whether image generation is configured.
func (s *Service) CanImage() bool { return s.cfg.Images != nil }

// CanVideo reports whether video generation is configured.
func (s *Service) CanVideo() bool { return s.cfg.Videos != nil }

// Image renders prompt at the given aspect ratio.
func (s *Service) Image(ctx context.Context, prompt string, aspect media.Aspect) (*media.Image, error) {
	if s.cfg.Images == nil {
		return nil, fmt.Errorf("%w: image", ErrUnavailable)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if aspect == "" {
		aspect = media.DefaultAspect
	}
	if _, err := media.ParseAspect(string(aspect)); err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "studio.image")
	defer span.End()
	span.SetAttributes(
		attribute.String("laith.provider", s.cfg.ImageProvider),
		attribute.String("laith.aspect", string(aspect)),
	)

	start := time.Now()
	img, err := s.cfg.Images.GenerateImage(ctx, media.ImageRequest{Prompt: prompt, Aspect: aspect})
	s.cfg.Metrics.RecordDuration(ctx, s.cfg.Metrics.ImageDuration, s.cfg.ImageProvider, start)
	s.record(ctx, s.cfg.ImageProvider, "image", err)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}
	observe.Logger(ctx).Info("image generated",
		"provider", s.cfg.ImageProvider,
		"bytes", len(img.Data),
		"elapsed", time.Since(start))
	return img, nil
}

// Video renders req, forwarding progress messages while the clip renders.
func (s *Service) Video(ctx context.Context, req media.VideoRequest, progress media.ProgressFunc) (*media.Video, error) {
	if s.cfg.Videos == nil {
		return nil, fmt.Errorf("%w: video", ErrUnavailable)
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if req.Aspect != "" {
		if _, err := media.ParseAspect(string(req.Aspect)); err != nil {
			return nil, err
		}
	}

	ctx, span := observe.StartSpan(ctx, "studio.video")
	defer span.End()
	span.SetAttributes(attribute.String("laith.provider", s.cfg.VideoProvider))

	polls := 0
	start := time.Now()
	vid, err := s.cfg.Videos.GenerateVideo(ctx, req, func(msg string) {
		polls++
		span.AddEvent("progress")
		if progress != nil {
			progress(msg)
		}
	})
	s.cfg.Metrics.RecordDuration(ctx, s.cfg.Metrics.VideoDuration, s.cfg.VideoProvider, start)
	s.record(ctx, s.cfg.VideoProvider, "video", err)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}
	observe.Logger(ctx).Info("video generated",
		"provider", s.cfg.VideoProvider,
		"bytes", len(vid.Data),
		"polls", polls,
		"elapsed", time.Since(start))
	return vid, nil
}

func (s *Service) record(ctx context.Context, provider, kind string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	default:
		status = "error"
		s.cfg.Metrics.RecordProviderError(ctx, provider, kind)
	}
	s.cfg.Metrics.RecordProviderRequest(ctx, provider, kind, status)
}
