// Package mock is a scripted [llm.Provider] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

// Call is one recorded request.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// StreamCall and CompleteCall name the recorded calls of each method.
type (
	StreamCall   = Call
	CompleteCall = Call
)

// Provider replays canned answers and records what it was asked. Configure
// the exported fields before first use.
type Provider struct {
	// StreamChunks are emitted in order by StreamCompletion, then the
	// channel closes.
	StreamChunks []llm.Chunk
	// StreamErr makes StreamCompletion fail before a channel is opened.
	StreamErr error
	// StreamGate, if set, must deliver one value per chunk.
	StreamGate chan struct{}

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	ModelCapabilities llm.ModelCapabilities

	mu            sync.Mutex
	StreamCalls   []StreamCall
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: req})
	chunks, gate, err := slices.Clone(p.StreamChunks), p.StreamGate, p.StreamErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan llm.Chunk, len(chunks))
	go replay(ctx, out, chunks, gate)
	return out, nil
}

func replay(ctx context.Context, out chan<- llm.Chunk, chunks []llm.Chunk, gate <-chan struct{}) {
	defer close(out)
	for _, c := range chunks {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: req})
	return p.CompleteResponse, p.CompleteErr
}

func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Streams returns a snapshot of the StreamCompletion calls so far.
func (p *Provider) Streams() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.StreamCalls)
}

// Reset forgets recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.StreamCalls, p.CompleteCalls = nil, nil
	p.mu.Unlock()
}
