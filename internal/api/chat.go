package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/laith/internal/chat"
	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/pkg/provider/llm"
)

type attachmentJSON struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

type messageJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sourceJSON struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

type chatRequest struct {
	Prompt     string          `json:"prompt"`
	Attachment *attachmentJSON `json:"attachment,omitempty"`
	History    []messageJSON   `json:"history,omitempty"`
	User       *chat.User      `json:"user,omitempty"`
	Settings   json.RawMessage `json:"settings,omitempty"` // merged onto the defaults
}

type chunkEvent struct {
	Text    string       `json:"text,omitempty"`
	Sources []sourceJSON `json:"sources,omitempty"`
}

type doneEvent struct {
	Content string       `json:"content"`
	Sources []sourceJSON `json:"sources,omitempty"`
}

func (r chatRequest) toService(d Defaults) (chat.Request, error) {
	out := chat.Request{
		Prompt:   r.Prompt,
		User:     d.User,
		Settings: d.Settings,
	}
	if r.User != nil {
		out.User = *r.User
	}
	if len(r.Settings) > 0 {
		merged := d.Settings
		dec := json.NewDecoder(bytes.NewReader(r.Settings))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&merged); err != nil {
			return chat.Request{}, fmt.Errorf("%w: settings: %w", errBadRequest, err)
		}
		out.Settings = merged
	}
	if r.Attachment != nil && len(r.Attachment.Data) > 0 {
		mime := r.Attachment.MIMEType
		if mime == "" {
			mime = http.DetectContentType(r.Attachment.Data)
		}
		out.Attachment = &llm.Attachment{Data: r.Attachment.Data, MIMEType: mime}
	}
	for _, m := range r.History {
		out.History = append(out.History, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func toSourceJSON(src []llm.Source) []sourceJSON {
	if len(src) == 0 {
		return nil
	}
	out := make([]sourceJSON, len(src))
	for i, s := range src {
		out[i] = sourceJSON{URI: s.URI, Title: s.Title}
	}
	return out
}

// handleChat streams a reply as server-sent events:
//
//	event: chunk  {"text": "...", "sources": [...]}
//	event: error  {"error": "..."}
//	event: done   {"content": "...", "sources": [...]}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Chat == nil {
		fail(w, r, http.StatusServiceUnavailable, errors.New("chat is not configured"))
		return
	}
	var req chatRequest
	if err := s.decode(w, r, &req); err != nil {
		fail(w, r, statusFor(err), err)
		return
	}

	creq, err := req.toService(s.CurrentDefaults())
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	ctx := r.Context()
	ch, err := s.cfg.Chat.Stream(ctx, creq)
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}

	sse := newEventWriter(w)
	var (
		text    strings.Builder
		sources []llm.Source
		seen    = make(map[string]bool)
	)
	for c := range ch {
		if c.FinishReason == llm.FinishReasonError {
			msg := "stream failed"
			if c.Err != nil {
				msg = c.Err.Error()
			}
			observe.Logger(ctx).Warn("chat stream failed", "err", c.Err)
			sse.send("error", errorBody{Error: msg})
			// Drain so the service goroutine can finish.
			for range ch {
			}
			return
		}
		if c.Text == "" && len(c.Sources) == 0 {
			continue
		}
		text.WriteString(c.Text)
		sources = llm.MergeSources(sources, seen, c.Sources)
		sse.send("chunk", chunkEvent{Text: c.Text, Sources: toSourceJSON(c.Sources)})
	}
	if ctx.Err() != nil {
		return
	}
	sse.send("done", doneEvent{Content: text.String(), Sources: toSourceJSON(sources)})
}

// eventWriter writes server-sent events and flushes after each one.
type eventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

func (e *eventWriter) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	_, _ = fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data)
	_ = e.rc.Flush()
}
