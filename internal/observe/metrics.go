// Package observe carries Laith's telemetry: OpenTelemetry metrics and
// traces, trace-tagged slog loggers and the HTTP middleware joining them.
//
// Metrics go through the OTel metrics API. [InitProvider] bridges them to a
// Prometheus registry for scraping. Production code shares [DefaultMetrics];
// tests build their own with [NewMetrics] over a private meter provider.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every Laith instrument.
const meterName = "github.com/MrWong99/laith"

// Metrics groups Laith's instruments. The OTel instruments synchronise
// internally.
type Metrics struct {
	// Latency histograms in seconds, tagged with provider.
	ChatDuration        metric.Float64Histogram
	ChatFirstChunk      metric.Float64Histogram
	ImageDuration       metric.Float64Histogram
	VideoDuration       metric.Float64Histogram
	LiveConnectDuration metric.Float64Histogram

	// ProviderRequests is tagged provider, kind and status; ProviderErrors
	// provider and kind.
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// BreakerTransitions is tagged provider, kind and the new state.
	BreakerTransitions metric.Int64Counter

	VoiceFramesSent     metric.Int64Counter
	VoiceFramesReceived metric.Int64Counter
	VoiceInterruptions  metric.Int64Counter
	VoiceStoppedBuffers metric.Int64Counter
	VoiceDecodeFailures metric.Int64Counter
	ActiveVoiceSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is tagged method, path and status_class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets span a streamed chat chunk up to a multi-minute video render.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}

	latency := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.ChatDuration, "laith.chat.duration", "Latency of a complete chat stream."},
		{&m.ChatFirstChunk, "laith.chat.first_chunk", "Time to the first streamed chat chunk."},
		{&m.ImageDuration, "laith.image.duration", "Latency of image generation."},
		{&m.VideoDuration, "laith.video.duration", "Latency of video generation including operation polling."},
		{&m.LiveConnectDuration, "laith.live.connect.duration", "Time from dialling a live session to the server accepting it."},
		{&m.HTTPRequestDuration, "laith.http.request.duration", "HTTP request latency by method, route and status class."},
	}
	for _, h := range latency {
		var err error
		*h.dst, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...))
		if err != nil {
			return nil, fmt.Errorf("observe: %s: %w", h.name, err)
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ProviderRequests, "laith.provider.requests", "Provider requests by provider, kind and status."},
		{&m.ProviderErrors, "laith.provider.errors", "Provider errors by provider and kind."},
		{&m.BreakerTransitions, "laith.provider.breaker_transitions", "Circuit breaker state changes by provider, kind and target state."},
		{&m.VoiceFramesSent, "laith.voice.frames_sent", "Microphone frames sent to the live transport."},
		{&m.VoiceFramesReceived, "laith.voice.frames_received", "Model audio chunks scheduled for playback."},
		{&m.VoiceInterruptions, "laith.voice.interruptions", "Server-signalled playback interruptions."},
		{&m.VoiceStoppedBuffers, "laith.voice.stopped_buffers", "Playback buffers stopped by interruptions."},
		{&m.VoiceDecodeFailures, "laith.voice.decode_failures", "Received audio payloads skipped because they could not be decoded."},
	}
	for _, c := range counters {
		var err error
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("observe: %s: %w", c.name, err)
		}
	}

	var err error
	m.ActiveVoiceSessions, err = meter.Int64UpDownCounter("laith.voice.active_sessions",
		metric.WithDescription("Number of open voice sessions."))
	if err != nil {
		return nil, fmt.Errorf("observe: laith.voice.active_sessions: %w", err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] on the global meter
// provider, created on first use. Call it after [InitProvider] so the
// instruments bind to the exporting provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordProviderRequest counts one request; status is "ok" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status)))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind)))
}

// RecordDuration observes the time since start on h.
func (m *Metrics) RecordDuration(ctx context.Context, h metric.Float64Histogram, provider string, start time.Time) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, kind, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("state", state)))
}

// RecordInterruption counts one interruption that cut stopped buffers short.
func (m *Metrics) RecordInterruption(ctx context.Context, stopped int) {
	m.VoiceInterruptions.Add(ctx, 1)
	if stopped > 0 {
		m.VoiceStoppedBuffers.Add(ctx, int64(stopped))
	}
}
