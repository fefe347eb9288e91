package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// chat backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
//
// A backend that rejects a request with [llm.ErrUnsupported] (for example a
// search-grounded request sent to a backend without a search tool) is skipped
// without counting against its breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.CircuitBreaker.Neutral == nil {
		cfg.CircuitBreaker.Neutral = func(err error) bool {
			return IsCallerError(err) || errors.Is(err, llm.ErrUnsupported)
		}
	}
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional chat provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Status reports the breaker state of every backend.
func (f *LLMFallback) Status() []EntryStatus { return f.group.Status() }

// Healthy reports whether any backend would accept a call.
func (f *LLMFallback) Healthy() bool { return f.group.Healthy() }

// Complete sends the request to the first healthy provider and returns its
// response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy provider. The first
// chunk is awaited before a backend is accepted, so a stream that fails before
// producing anything still fails over. Errors after the first chunk reach the
// caller as a [llm.FinishReasonError] chunk.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		ch, err := p.StreamCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		var first llm.Chunk
		var ok bool
		select {
		case first, ok = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if !ok {
			return nil, fmt.Errorf("stream closed before first chunk")
		}
		if first.FinishReason == llm.FinishReasonError {
			if first.Err == nil {
				first.Err = errors.New("stream failed")
			}
			return nil, first.Err
		}
		return prepend(ctx, first, ch), nil
	})
}

func prepend(ctx context.Context, first llm.Chunk, rest <-chan llm.Chunk) <-chan llm.Chunk {
	out := make(chan llm.Chunk, cap(rest)+1)
	out <- first
	go func() {
		defer close(out)
		for c := range rest {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Capabilities returns the capabilities of the primary.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	if len(f.group.members) > 0 {
		return f.group.members[0].backend.Capabilities()
	}
	return llm.ModelCapabilities{}
}
