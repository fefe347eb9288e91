// Package chat runs streamed conversations with the Laith persona.
//
// A [Service] turns a prompt, optional attachment and prior history into a
// model request, starts a stream on the configured provider and returns the
// chunks unchanged while recording latency and outcome. [Conversation] keeps
// history across turns for interactive use.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/pkg/provider/llm"
)

// ErrEmptyPrompt is returned when a request carries neither text nor an
// attachment.
var ErrEmptyPrompt = errors.New("chat: prompt must not be empty")

// Request is one user turn.
type Request struct {
	Prompt     string
	Attachment *llm.Attachment
	History    []llm.Message
	User       User
	Settings   Settings
}

// Config wires a [Service].
type Config struct {
	Provider     llm.Provider
	ProviderName string
	// Metrics receives instrumentation. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Service streams chat completions. It is safe for concurrent use.
type Service struct {
	provider llm.Provider
	name     string
	metrics  *observe.Metrics
}

// New returns a Service for cfg.
func New(cfg Config) *Service {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Service{provider: cfg.Provider, name: cfg.ProviderName, metrics: cfg.Metrics}
}

// BuildRequest assembles the provider request for req.
func BuildRequest(req Request) llm.CompletionRequest {
	msgs := FormatHistory(req.History)
	turn := llm.Message{Role: llm.RoleUser, Content: req.Prompt}
	if req.Attachment != nil && len(req.Attachment.Data) > 0 {
		turn.Attachments = []llm.Attachment{*req.Attachment}
	}
	out := llm.CompletionRequest{
		Messages:     append(msgs, turn),
		SystemPrompt: SystemInstruction(req.User),
	}
	req.Settings.apply(&out)
	return out
}

// Stream starts a completion for req. The returned channel is closed when the
// stream ends; a failure mid-stream arrives as a chunk with
// [llm.FinishReasonError].
func (s *Service) Stream(ctx context.Context, req Request) (<-chan llm.Chunk, error) {
	if strings.TrimSpace(req.Prompt) == "" && (req.Attachment == nil || len(req.Attachment.Data) == 0) {
		return nil, ErrEmptyPrompt
	}
	creq := BuildRequest(req)

	ctx, span := observe.StartSpan(ctx, "chat.stream")
	span.SetAttributes(
		attribute.String("laith.provider", s.name),
		attribute.Int("laith.history", len(creq.Messages)-1),
		attribute.Bool("laith.search", creq.Search),
		attribute.Int("laith.thinking_budget", creq.ThinkingBudget),
	)

	start := time.Now()
	in, err := s.provider.StreamCompletion(ctx, creq)
	if err != nil {
		s.finish(ctx, start, err)
		observe.FailSpan(span, err)
		span.End()
		return nil, err
	}

	out := make(chan llm.Chunk, cap(in))
	go func() {
		defer close(out)
		defer span.End()
		first := true
		var streamErr error
		forward := true
		for c := range in {
			if first && (c.Text != "" || len(c.Sources) > 0) {
				first = false
				s.metrics.RecordDuration(ctx, s.metrics.ChatFirstChunk, s.name, start)
			}
			if c.FinishReason == llm.FinishReasonError {
				streamErr = c.Err
				if streamErr == nil {
					streamErr = errors.New("chat: stream failed")
				}
			}
			if !forward {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				// Keep draining so the provider goroutine can exit.
				forward = false
				streamErr = ctx.Err()
			}
		}
		if streamErr == nil {
			streamErr = ctx.Err()
		}
		observe.FailSpan(span, streamErr)
		s.finish(ctx, start, streamErr)
	}()
	return out, nil
}

// Reply streams req to completion and returns the assembled answer.
func (s *Service) Reply(ctx context.Context, req Request) (*llm.CompletionResponse, error) {
	ch, err := s.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Collect(ctx, ch)
}

func (s *Service) finish(ctx context.Context, start time.Time, err error) {
	s.metrics.RecordDuration(ctx, s.metrics.ChatDuration, s.name, start)
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	default:
		status = "error"
		s.metrics.RecordProviderError(ctx, s.name, "chat")
	}
	s.metrics.RecordProviderRequest(ctx, s.name, "chat", status)
}
