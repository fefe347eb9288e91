// Package llm defines the Provider interface for chat model backends.
//
// An LLM provider wraps a remote or local model API (e.g., Gemini, OpenAI GPT,
// or a local Ollama instance) and exposes a uniform interface for the Laith
// chat service to stream answers and inspect model capabilities without
// coupling to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when a request uses a feature (attachments,
// search grounding) the provider cannot serve.
var ErrUnsupported = errors.New("llm: feature not supported by provider")

// FinishReasonError marks the terminal chunk of a stream that failed after it
// started. The chunk's Err field carries the cause.
const FinishReasonError = "error"

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is the
	// user turn that drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history. Providers without a dedicated system field prepend
	// it as a RoleSystem message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. A nil
	// value leaves the provider default in place.
	Temperature *float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// ThinkingBudget is the number of tokens the model may spend reasoning
	// before it answers. Zero disables extended thinking. Providers that
	// cannot honour a budget ignore it.
	ThinkingBudget int

	// Search enables grounding in live web search results. Providers that
	// cannot search return ErrUnsupported.
	Search bool
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// Sources lists the web pages grounding this chunk, when search was
	// enabled and the backend reported citations.
	Sources []Source

	// FinishReason is set on the final chunk and indicates why generation stopped.
	// Common values are "stop" (natural end), "length" (MaxTokens reached),
	// FinishReasonError, and "" (non-final chunk).
	FinishReason string

	// Err is set together with FinishReasonError.
	Err error
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Sources is the deduplicated list of grounding citations.
	Sources []Source

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines. Each
// method should propagate context cancellation promptly: when ctx is cancelled the
// method must return (or close its channel) as quickly as possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel that
	// emits Chunk values as they arrive. The channel is closed by the implementation
	// when generation finishes or when ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors that occur
	// after the channel is opened are surfaced as a Chunk with FinishReasonError;
	// the initial error return is non-nil only for failures that prevent the
	// stream from starting (e.g., invalid credentials, malformed request).
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's underlying
	// model supports. The result is assumed to be constant for the lifetime of the
	// Provider instance.
	Capabilities() ModelCapabilities
}

// Collect drains a chunk stream into a CompletionResponse. It is the shared
// implementation of Complete for providers that only stream natively. A
// FinishReasonError chunk aborts collection with its error.
func Collect(ctx context.Context, ch <-chan Chunk) (*CompletionResponse, error) {
	resp := &CompletionResponse{}
	seen := make(map[string]bool)
	var text []byte
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c, ok := <-ch:
			if !ok {
				resp.Content = string(text)
				return resp, nil
			}
			if c.FinishReason == FinishReasonError {
				if c.Err == nil {
					c.Err = errors.New("llm: stream failed")
				}
				return nil, c.Err
			}
			text = append(text, c.Text...)
			resp.Sources = MergeSources(resp.Sources, seen, c.Sources)
		}
	}
}

// MergeSources appends the sources in add whose URI is not yet in seen.
func MergeSources(dst []Source, seen map[string]bool, add []Source) []Source {
	for _, s := range add {
		if s.URI == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		dst = append(dst, s)
	}
	return dst
}
