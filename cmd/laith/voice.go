package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrWong99/laith/internal/app"
	"github.com/MrWong99/laith/pkg/provider/live"
)

func runVoice(ctx context.Context, e *env, _ []string) int {
	application, err := buildApp(ctx, e)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	s, err := application.VoiceSession(app.VoiceDevices{
		OnStatus: func(status string) { fmt.Fprintf(os.Stderr, "[%s]\n", status) },
		OnTranscript: func(role, text string) {
			who := "you"
			if role == live.RoleModel {
				who = "laith"
			}
			fmt.Fprintf(os.Stdout, "%s: %s\n", who, text)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}
	if err := s.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stderr, "listening, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case <-s.Done():
	}
	if err := s.Stop(); err != nil {
		slog.Warn("voice: releasing devices", "err", err)
	}
	st := s.Stats()
	slog.Info("voice session ended",
		"frames_sent", st.FramesSent,
		"frames_received", st.FramesReceived,
		"interruptions", st.Interruptions,
	)
	if err := s.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}
	return 0
}
