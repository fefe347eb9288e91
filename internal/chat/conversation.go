package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

// Conversation keeps the running history of one chat for interactive use.
// It is safe for concurrent use, but turns are serialised.
type Conversation struct {
	svc      *Service
	user     User
	settings Settings

	mu      sync.Mutex
	history []llm.Message
}

// NewConversation starts an empty conversation on svc.
func NewConversation(svc *Service, user User, settings Settings) *Conversation {
	return &Conversation{svc: svc, user: user, settings: settings}
}

// Send streams a reply to prompt, calling onChunk for every chunk that
// carries text or sources. The user turn and the assembled reply are
// appended to the history only when the stream completes without error.
func (c *Conversation) Send(ctx context.Context, prompt string, att *llm.Attachment, onChunk func(llm.Chunk)) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.svc.Stream(ctx, Request{
		Prompt:     prompt,
		Attachment: att,
		History:    c.history,
		User:       c.user,
		Settings:   c.settings,
	})
	if err != nil {
		return nil, err
	}

	resp := &llm.CompletionResponse{}
	seen := make(map[string]bool)
	var text strings.Builder
	var streamErr error
	for chunk := range ch {
		if chunk.FinishReason == llm.FinishReasonError {
			streamErr = chunk.Err
			if streamErr == nil {
				streamErr = errors.New("chat: stream failed")
			}
			continue
		}
		text.WriteString(chunk.Text)
		resp.Sources = llm.MergeSources(resp.Sources, seen, chunk.Sources)
		if onChunk != nil && (chunk.Text != "" || len(chunk.Sources) > 0) {
			onChunk(chunk)
		}
	}
	if streamErr == nil {
		streamErr = ctx.Err()
	}
	if streamErr != nil {
		return nil, streamErr
	}
	resp.Content = text.String()
	c.history = append(c.history,
		llm.Message{Role: llm.RoleUser, Content: prompt},
		llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
	)
	return resp, nil
}

// History returns a copy of the completed turns.
func (c *Conversation) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.history...)
}

// Reset forgets all turns.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// SetSettings replaces the settings used for subsequent turns.
func (c *Conversation) SetSettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
}
