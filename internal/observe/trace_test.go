package observe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory tracer provider as the global one for
// the duration of the test.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_CorrelationID(t *testing.T) {
	exp := useRecorder(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q", got)
	}
	ctx, span := StartSpan(context.Background(), "chat.stream")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("CorrelationID = %q, want 32 hex chars", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "chat.stream" {
		t.Fatalf("spans = %v", spans)
	}
	if spans[0].SpanContext.TraceID().String() != cid {
		t.Error("correlation ID differs from the recorded trace ID")
	}
}

func TestFailSpan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantEvent  string
	}{
		{name: "nil", err: nil, wantStatus: codes.Unset},
		{name: "upstream", err: errors.New("quota exceeded"), wantStatus: codes.Error, wantEvent: "exception"},
		{name: "cancelled", err: fmt.Errorf("stream: %w", context.Canceled), wantStatus: codes.Unset, wantEvent: "cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := useRecorder(t)
			_, span := StartSpan(context.Background(), "studio.image")
			FailSpan(span, tt.err)
			span.End()

			got := exp.GetSpans()[0]
			if got.Status.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", got.Status.Code, tt.wantStatus)
			}
			var events []string
			for _, ev := range got.Events {
				events = append(events, ev.Name)
			}
			if tt.wantEvent == "" && len(events) != 0 {
				t.Errorf("events = %v, want none", events)
			}
			if tt.wantEvent != "" && (len(events) != 1 || events[0] != tt.wantEvent) {
				t.Errorf("events = %v, want [%s]", events, tt.wantEvent)
			}
		})
	}
}

func TestLogger_TagsActiveSpan(t *testing.T) {
	useRecorder(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("no span")
	ctx, span := StartSpan(context.Background(), "studio.video")
	defer span.End()
	Logger(ctx).Info("with span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %q", lines)
	}
	if strings.Contains(lines[0], "trace_id=") {
		t.Errorf("untraced line has trace_id: %s", lines[0])
	}
	want := "trace_id=" + CorrelationID(ctx)
	if !strings.Contains(lines[1], want) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("traced line = %s, want %s and span_id", lines[1], want)
	}
}
