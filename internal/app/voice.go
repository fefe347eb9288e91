package app

import (
	"context"
	"errors"
	"io"

	"github.com/MrWong99/laith/internal/chat"
	"github.com/MrWong99/laith/internal/config"
	"github.com/MrWong99/laith/internal/voice"
	"github.com/MrWong99/laith/pkg/audio"
	"github.com/MrWong99/laith/pkg/audio/capture"
	"github.com/MrWong99/laith/pkg/audio/playback"
	"github.com/MrWong99/laith/pkg/provider/live"
)

// ErrNoLiveProvider is returned by [App.VoiceSession] when no realtime
// provider is configured.
var ErrNoLiveProvider = errors.New("app: no live provider configured")

// VoiceDevices overrides the audio devices of a voice session. Nil fields
// are built from the voice config.
type VoiceDevices struct {
	Capture capture.Device
	Output  voice.OutputFunc

	OnStatus     func(status string)
	OnTranscript func(role, text string)
}

// VoiceSession returns an idle voice session configured from the current
// voice and assistant settings.
func (a *App) VoiceSession(devs VoiceDevices) (*voice.Session, error) {
	if a.providers.Live == nil {
		return nil, ErrNoLiveProvider
	}
	cfg := a.Config()
	if devs.Capture == nil {
		devs.Capture = CaptureDevice(cfg.Voice.Capture)
	}
	if devs.Output == nil {
		devs.Output = OutputDevice(cfg.Voice.Playback)
	}
	return voice.New(voice.Config{
		Transport:    a.providers.Live,
		Capture:      devs.Capture,
		Output:       devs.Output,
		Session:      LiveSessionConfig(cfg),
		Metrics:      a.metrics,
		OnStatus:     devs.OnStatus,
		OnTranscript: devs.OnTranscript,
	}), nil
}

// LiveSessionConfig derives the live session setup from cfg.
func LiveSessionConfig(cfg *config.Config) live.SessionConfig {
	return live.SessionConfig{
		Model:             cfg.Providers.Live.Model,
		VoiceName:         cfg.Voice.VoiceName,
		SystemInstruction: chat.SystemInstruction(cfg.Assistant.User()),
		Transcripts:       cfg.Voice.Transcripts,
	}
}

// CaptureDevice returns the microphone described by c: ffmpeg on the
// default input, or a custom recorder command.
func CaptureDevice(c config.CaptureConfig) capture.Device {
	return &capture.FFmpeg{
		Command:     c.Command,
		CommandArgs: c.Args,
		Encoding:    capture.Encoding(c.Format),
	}
}

// OutputDevice returns an [voice.OutputFunc] opening the speaker described
// by p: a WAV recording when RecordPath is set, otherwise a player command
// fed raw PCM16.
func OutputDevice(p config.PlaybackConfig) voice.OutputFunc {
	return func(ctx context.Context) (playback.Device, error) {
		format := audio.Mono(audio.PlaybackRate)
		var out io.Writer
		if p.RecordPath != "" {
			w, err := playback.FileOutput(p.RecordPath, format)
			if err != nil {
				return nil, err
			}
			out = w
		} else {
			cmd, err := playback.Command(ctx, format, p.Command, p.Args...)
			if err != nil {
				return nil, err
			}
			out = cmd
		}
		dev, err := playback.NewContext(out, format)
		if err != nil {
			if c, ok := out.(io.Closer); ok {
				_ = c.Close()
			}
			return nil, err
		}
		return dev, nil
	}
}
