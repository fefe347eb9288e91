package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/MrWong99/laith/internal/chat"
	"github.com/MrWong99/laith/pkg/provider/llm"
)

const chatHelp = `commands:
  /reset         forget the conversation
  /think         toggle deep thinking
  /search        toggle web search
  /attach PATH   attach a file to the next message
  /quit          exit`

func runChat(ctx context.Context, e *env, args []string) int {
	application, err := buildApp(ctx, e)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	conv := chat.NewConversation(application.Chat(), e.cfg.Assistant.User(), e.cfg.Assistant.Settings())

	if len(args) > 0 {
		if err := sendTurn(ctx, os.Stdout, conv, strings.Join(args, " "), nil); err != nil {
			fmt.Fprintf(os.Stderr, "laith: %v\n", err)
			return 1
		}
		return 0
	}
	if err := chatREPL(ctx, os.Stdin, os.Stdout, conv, e.cfg.Assistant.Settings()); err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}
	return 0
}

// chatREPL reads prompts line by line from in until EOF, /quit or ctx is
// done.
func chatREPL(ctx context.Context, in io.Reader, out io.Writer, conv *chat.Conversation, settings chat.Settings) error {
	fmt.Fprintln(out, "Laith AI. Type /help for commands.")
	sc := bufio.NewScanner(in)
	var att *llm.Attachment
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			fmt.Fprintln(out, chatHelp)
			continue
		case line == "/reset":
			conv.Reset()
			fmt.Fprintln(out, "(conversation cleared)")
			continue
		case line == "/think":
			settings.DeepThinking = !settings.DeepThinking
			conv.SetSettings(settings)
			fmt.Fprintf(out, "(deep thinking %s)\n", onOff(settings.DeepThinking))
			continue
		case line == "/search":
			settings.Search = !settings.Search
			conv.SetSettings(settings)
			fmt.Fprintf(out, "(web search %s)\n", onOff(settings.Search))
			continue
		case strings.HasPrefix(line, "/attach"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach"))
			a, err := readAttachment(path)
			if err != nil {
				fmt.Fprintf(out, "(attach failed: %v)\n", err)
				continue
			}
			att = a
			fmt.Fprintf(out, "(attached %s, %s)\n", path, a.MIMEType)
			continue
		}

		err := sendTurn(ctx, out, conv, line, att)
		att = nil
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			fmt.Fprintf(out, "\n(error: %v)\n", err)
		}
	}
}

// sendTurn streams the reply to prompt to out, followed by its sources.
func sendTurn(ctx context.Context, out io.Writer, conv *chat.Conversation, prompt string, att *llm.Attachment) error {
	resp, err := conv.Send(ctx, prompt, att, func(c llm.Chunk) {
		fmt.Fprint(out, c.Text)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, s := range resp.Sources {
			title := s.Title
			if title == "" {
				title = s.URI
			}
			fmt.Fprintf(out, "  [%d] %s <%s>\n", i+1, title, s.URI)
		}
	}
	return nil
}

// readAttachment loads path and sniffs its content type.
func readAttachment(path string) (*llm.Attachment, error) {
	if path == "" {
		return nil, errors.New("usage: /attach PATH")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &llm.Attachment{Data: data, MIMEType: http.DetectContentType(data)}, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
