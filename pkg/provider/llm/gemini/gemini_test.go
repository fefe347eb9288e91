package gemini

import (
	"context"
	"errors"
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

func fakeStream(resps []*genai.GenerateContentResponse, tail error, got **genai.GenerateContentConfig) streamFunc {
	return func(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		if got != nil {
			*got = cfg
		}
		return func(yield func(*genai.GenerateContentResponse, error) bool) {
			for _, r := range resps {
				if !yield(r, nil) {
					return
				}
			}
			if tail != nil {
				yield(nil, tail)
			}
		}
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
	}}}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), ""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestConvertMessages(t *testing.T) {
	t.Parallel()
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "what is this?", Attachments: []llm.Attachment{{Data: []byte{0x89, 'P'}, MIMEType: "image/png"}}},
		{Role: llm.RoleAssistant, Content: "a logo"},
		{Role: llm.RoleUser, Content: ""},
	}
	contents, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("len(contents) = %d, want 2 (empty message dropped)", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Errorf("roles = %q, %q; want user, model", contents[0].Role, contents[1].Role)
	}
	parts := contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("user parts = %d, want 2", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("attachment part = %+v, want inline image/png", parts[1])
	}
}

func TestConvertMessages_RejectsSystemRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessages([]llm.Message{{Role: llm.RoleSystem, Content: "x"}}); err == nil {
		t.Error("expected error for system role in history")
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()
	temp := 0.2
	cfg := buildConfig(llm.CompletionRequest{
		SystemPrompt:   "be helpful",
		Temperature:    &temp,
		ThinkingBudget: 16000,
		Search:         true,
	})
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be helpful" {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.2) {
		t.Errorf("temperature = %v, want 0.2", cfg.Temperature)
	}
	if cfg.ThinkingConfig == nil || *cfg.ThinkingConfig.ThinkingBudget != 16000 {
		t.Errorf("thinking config = %+v, want budget 16000", cfg.ThinkingConfig)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].GoogleSearch == nil {
		t.Errorf("tools = %+v, want google search", cfg.Tools)
	}

	plain := buildConfig(llm.CompletionRequest{})
	if plain.Temperature != nil || plain.ThinkingConfig != nil || plain.Tools != nil {
		t.Errorf("empty request produced config %+v", plain)
	}
}

func TestConvertResponse_Grounding(t *testing.T) {
	t.Parallel()
	resp := textResponse("Answer")
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://example.com", Title: "Example"}},
			{Web: &genai.GroundingChunkWeb{}},
			{},
		},
	}
	resp.Candidates[0].FinishReason = genai.FinishReasonStop

	c, ok := convertResponse(resp)
	if !ok {
		t.Fatal("chunk dropped")
	}
	if c.Text != "Answer" || c.FinishReason != "stop" {
		t.Errorf("chunk = %+v", c)
	}
	if len(c.Sources) != 1 || c.Sources[0] != (llm.Source{URI: "https://example.com", Title: "Example"}) {
		t.Errorf("sources = %+v", c.Sources)
	}
}

func TestConvertResponse_SkipsThoughtsAndEmpty(t *testing.T) {
	t.Parallel()
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "hmm", Thought: true}}},
	}}}
	if _, ok := convertResponse(resp); ok {
		t.Error("thought-only chunk should be dropped")
	}
	if _, ok := convertResponse(&genai.GenerateContentResponse{}); ok {
		t.Error("candidate-less chunk should be dropped")
	}
}

func TestStreamCompletion(t *testing.T) {
	t.Parallel()
	var gotCfg *genai.GenerateContentConfig
	p := &Provider{
		model:  DefaultModel,
		stream: fakeStream([]*genai.GenerateContentResponse{textResponse("Hel"), textResponse("lo")}, nil, &gotCfg),
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Search:   true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello" {
		t.Errorf("content = %q, want Hello", resp.Content)
	}
	if gotCfg == nil || len(gotCfg.Tools) != 1 {
		t.Error("search tool not passed to stream")
	}
}

func TestStreamCompletion_MidStreamError(t *testing.T) {
	t.Parallel()
	boom := errors.New("quota exceeded")
	p := &Provider{
		model:  DefaultModel,
		stream: fakeStream([]*genai.GenerateContentResponse{textResponse("partial")}, boom, nil),
	}

	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var chunks []llm.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	last := chunks[1]
	if last.FinishReason != llm.FinishReasonError || !errors.Is(last.Err, boom) {
		t.Errorf("last chunk = %+v, want error wrapping boom", last)
	}
}

func TestStreamCompletion_NoMessages(t *testing.T) {
	t.Parallel()
	p := &Provider{model: DefaultModel, stream: fakeStream(nil, nil, nil)}
	if _, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty history")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gemini-2.0-flash"}
	if p.Capabilities().SupportsThinking {
		t.Error("gemini-2.0 should not report thinking support")
	}
	p = &Provider{model: DefaultModel}
	caps := p.Capabilities()
	if !caps.SupportsSearch || !caps.SupportsThinking || !caps.SupportsVision {
		t.Errorf("default model caps = %+v", caps)
	}
}
