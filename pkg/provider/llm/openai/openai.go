// Package openai is the chat provider for the OpenAI chat completions API.
//
// Image attachments travel as base64 data URLs. The API has no web search
// tool, so search requests fail with [llm.ErrUnsupported] and fall through
// to the next provider.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

// Provider streams chat completions from one OpenAI model.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

// Option adds a request option to every call the provider makes.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) {
		if url != "" {
			*o = append(*o, option.WithBaseURL(url))
		}
	}
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) {
		if org != "" {
			*o = append(*o, option.WithOrganization(org))
		}
	}
}

// WithTimeout bounds each HTTP request, streaming ones included.
func WithTimeout(d time.Duration) Option {
	return func(o *[]option.RequestOption) {
		if d > 0 {
			*o = append(*o, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// New returns a Provider for model authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: API key is required")
	case model == "":
		return nil, errors.New("openai: model is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: open stream: %w", err)
	}

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
		defer stream.Close()
		for stream.Next() {
			ev := stream.Current()
			if len(ev.Choices) == 0 {
				continue
			}
			c := llm.Chunk{Text: ev.Choices[0].Delta.Content, FinishReason: ev.Choices[0].FinishReason}
			if c.Text == "" && c.FinishReason == "" {
				continue
			}
			if !send(c) {
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			send(llm.Chunk{FinishReason: llm.FinishReasonError, Err: fmt.Errorf("openai: stream: %w", err)})
		}
	}()
	return out, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage:   llm.Usage{PromptTokens: int(u.PromptTokens), CompletionTokens: int(u.CompletionTokens), TotalTokens: int(u.TotalTokens)},
	}, nil
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return modelCapabilities(p.model) }

func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{SupportsStreaming: true, ContextWindow: 128_000, MaxOutputTokens: 4_096}
	m := strings.ToLower(model)
	has := func(prefixes ...string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(m, p) {
				return true
			}
		}
		return false
	}
	switch {
	case has("gpt-5"):
		caps.ContextWindow, caps.MaxOutputTokens = 400_000, 128_000
		caps.SupportsVision, caps.SupportsThinking = true, true
	case has("gpt-4o", "gpt-4.1"):
		caps.MaxOutputTokens = 16_384
		caps.SupportsVision = true
	case has("gpt-4-turbo"):
		caps.SupportsVision = true
	case has("gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	case has("o1", "o3", "o4"):
		caps.ContextWindow, caps.MaxOutputTokens = 200_000, 100_000
		caps.SupportsThinking = true
		// The small reasoning models are text only.
		caps.SupportsVision = !strings.HasSuffix(m, "-mini")
	}
	return caps
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model)}
	if req.Search {
		return params, fmt.Errorf("web search: %w", llm.ErrUnsupported)
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, msg)
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.ThinkingBudget > 0 && modelCapabilities(p.model).SupportsThinking {
		params.ReasoningEffort = reasoningEffort(req.ThinkingBudget)
	}
	return params, nil
}

// reasoningEffort maps a thinking budget in tokens onto an effort level.
func reasoningEffort(budget int) shared.ReasoningEffort {
	if budget >= 12_000 {
		return shared.ReasoningEffortHigh
	}
	if budget >= 4_000 {
		return shared.ReasoningEffortMedium
	}
	return shared.ReasoningEffortLow
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	case llm.RoleUser:
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
	if len(m.Attachments) == 0 {
		return oai.UserMessage(m.Content), nil
	}

	parts := make([]oai.ChatCompletionContentPartUnionParam, 0, len(m.Attachments)+1)
	if m.Content != "" {
		parts = append(parts, oai.TextContentPart(m.Content))
	}
	for _, a := range m.Attachments {
		if !strings.HasPrefix(a.MIMEType, "image/") {
			return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: attachment type %q: %w", a.MIMEType, llm.ErrUnsupported)
		}
		url := "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
		parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	return oai.UserMessage(parts), nil
}
