// Package gemini provides an LLM provider backed by the Gemini API through
// google.golang.org/genai.
//
// Besides plain streaming chat it supports inline image attachments, Google
// Search grounding (citations are surfaced as [llm.Source] values) and a
// thinking budget for deliberate answers.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-3-flash-preview"

// streamFunc matches [genai.Models.GenerateContentStream].
type streamFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

// Provider implements llm.Provider using the Gemini API.
type Provider struct {
	stream streamFunc
	model  string
}

type config struct {
	model   string
	baseURL string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides [DefaultModel].
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// New constructs a Gemini chat Provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{stream: client.Models.GenerateContentStream, model: cfg.model}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("gemini: build contents: %w", err)
	}
	cfg := buildConfig(req)

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		send := func(c llm.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for resp, err := range p.stream(ctx, p.model, contents, cfg) {
			if err != nil {
				if ctx.Err() == nil {
					send(llm.Chunk{FinishReason: llm.FinishReasonError, Err: fmt.Errorf("gemini: stream: %w", err)})
				}
				return
			}
			c, ok := convertResponse(resp)
			if !ok {
				continue
			}
			if !send(c) {
				return
			}
		}
	}()
	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ch, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Collect(ctx, ch)
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:     1_048_576,
		MaxOutputTokens:   65_536,
		SupportsVision:    true,
		SupportsSearch:    true,
		SupportsThinking:  true,
		SupportsStreaming: true,
	}
	lower := strings.ToLower(p.model)
	switch {
	case strings.Contains(lower, "gemini-2.0"), strings.Contains(lower, "gemini-1.5"):
		caps.MaxOutputTokens = 8_192
		caps.SupportsThinking = false
	case strings.Contains(lower, "-image"):
		caps.SupportsSearch = false
		caps.SupportsThinking = false
	}
	return caps
}

// buildConfig maps request settings onto the Gemini generation config.
func buildConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(req.ThinkingBudget))}
	}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

// convertMessages maps the history onto Gemini contents. System messages are
// folded into the config by the caller and rejected here; assistant turns
// become model turns.
func convertMessages(msgs []llm.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages")
	}
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role
		switch m.Role {
		case llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
		parts := make([]*genai.Part, 0, 1+len(m.Attachments))
		if m.Content != "" {
			parts = append(parts, genai.NewPartFromText(m.Content))
		}
		for _, a := range m.Attachments {
			parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: string(role), Parts: parts})
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("no non-empty messages")
	}
	return contents, nil
}

// convertResponse extracts the text and grounding sources of the first
// candidate. It reports false for chunks that carry neither.
func convertResponse(resp *genai.GenerateContentResponse) (llm.Chunk, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Chunk{}, false
	}
	cand := resp.Candidates[0]
	var c llm.Chunk
	if cand.Content != nil {
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
		c.Text = sb.String()
	}
	if gm := cand.GroundingMetadata; gm != nil {
		for _, gc := range gm.GroundingChunks {
			if gc == nil || gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			c.Sources = append(c.Sources, llm.Source{URI: gc.Web.URI, Title: gc.Web.Title})
		}
	}
	switch cand.FinishReason {
	case "", genai.FinishReasonUnspecified:
	case genai.FinishReasonStop:
		c.FinishReason = "stop"
	case genai.FinishReasonMaxTokens:
		c.FinishReason = "length"
	default:
		c.FinishReason = strings.ToLower(string(cand.FinishReason))
	}
	if c.Text == "" && len(c.Sources) == 0 && c.FinishReason == "" {
		return llm.Chunk{}, false
	}
	return c, true
}
