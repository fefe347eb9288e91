// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider],
// covering chat vendors without a dedicated package: Anthropic, DeepSeek,
// Mistral, Groq, Ollama and local llama.cpp or llamafile servers. The
// adapter is text only and mostly serves as a chat fallback.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

func backend[P anyllmlib.Provider](newFn func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		p, err := newFn(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var backends = map[string]backendFunc{
	"anthropic": backend(anthropic.New),
	"deepseek":  backend(deepseek.New),
	"gemini":    backend(gemini.New),
	"groq":      backend(groq.New),
	"llamacpp":  backend(llamacpp.New),
	"llamafile": backend(llamafile.New),
	"mistral":   backend(mistral.New),
	"ollama":    backend(ollama.New),
	"openai":    backend(anyllmoai.New),
}

// Vendors lists the accepted vendor names in sorted order.
func Vendors() []string { return slices.Sorted(maps.Keys(backends)) }

// Provider is an [llm.Provider] over one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New connects to vendor (see [Vendors]) and uses model for every request.
// Without an anyllmlib.WithAPIKey option the vendor's usual environment
// variable is consulted.
func New(vendor, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if vendor == "" || model == "" {
		return nil, errors.New("anyllm: vendor and model are required")
	}
	newFn, ok := backends[strings.ToLower(vendor)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown vendor %q (have %s)", vendor, strings.Join(Vendors(), ", "))
	}
	b, err := newFn(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", vendor, err)
	}
	return &Provider{backend: b, model: model}, nil
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	chunks, errs := p.backend.CompletionStream(ctx, params)
	out := make(chan llm.Chunk, 32)
	send := func(c llm.Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(out)
		for c := range chunks {
			if len(c.Choices) == 0 {
				continue
			}
			delta := llm.Chunk{Text: c.Choices[0].Delta.Content, FinishReason: c.Choices[0].FinishReason}
			if delta.Text == "" && delta.FinishReason == "" {
				continue
			}
			if !send(delta) {
				return
			}
		}
		// The error channel settles once the chunk channel is drained.
		if err := <-errs; err != nil && ctx.Err() == nil {
			send(llm.Chunk{FinishReason: llm.FinishReasonError, Err: fmt.Errorf("anyllm: stream: %w", err)})
		}
	}()
	return out, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: response has no choices")
	}
	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return modelCapabilities(p.model) }

// buildParams maps req onto the portable request shape. Attachments and
// search have no portable form and yield llm.ErrUnsupported.
func (p *Provider) buildParams(req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	params := anyllmlib.CompletionParams{Model: p.model}
	if req.Search {
		return params, fmt.Errorf("anyllm: web search: %w", llm.ErrUnsupported)
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		if len(m.Attachments) > 0 {
			return params, fmt.Errorf("anyllm: attachments: %w", llm.ErrUnsupported)
		}
		params.Messages = append(params.Messages, convertMessage(m))
	}
	if req.Temperature != nil {
		t := *req.Temperature
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	return params, nil
}

func convertMessage(m llm.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: m.Role, Content: m.Content}
}

// familyCaps adjusts the defaults for a model family.
type familyCaps struct {
	match    func(model string) bool
	window   int
	output   int
	vision   bool
	thinking bool
}

func prefix(ps ...string) func(string) bool {
	return func(m string) bool {
		return slices.ContainsFunc(ps, func(p string) bool { return strings.HasPrefix(m, p) })
	}
}

func contains(subs ...string) func(string) bool {
	return func(m string) bool {
		return slices.ContainsFunc(subs, func(s string) bool { return strings.Contains(m, s) })
	}
}

// families is checked in order; the first match wins. Zero sizes keep the
// defaults.
var families = []familyCaps{
	{match: prefix("gpt-4o", "gpt-4.1", "gpt-5"), output: 16_384, vision: true},
	{match: prefix("gpt-3.5"), window: 16_385},
	{match: prefix("o1", "o3", "o4"), window: 200_000, output: 100_000, thinking: true},
	{match: prefix("claude"), window: 200_000, output: 8_192, vision: true},
	{match: prefix("gemini"), window: 1_048_576, output: 8_192, vision: true},
	{match: contains("deepseek-r1", "deepseek-reasoner"), window: 64_000, thinking: true},
	{match: prefix("llama", "mistral", "qwen"), window: 32_768},
}

func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{SupportsStreaming: true, ContextWindow: 128_000, MaxOutputTokens: 4_096}
	m := strings.ToLower(model)
	for _, f := range families {
		if !f.match(m) {
			continue
		}
		if f.window > 0 {
			caps.ContextWindow = f.window
		}
		if f.output > 0 {
			caps.MaxOutputTokens = f.output
		}
		caps.SupportsVision, caps.SupportsThinking = f.vision, f.thinking
		break
	}
	return caps
}
