package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/MrWong99/laith/pkg/audio"
)

// DefaultPlayerArgs returns ffplay arguments that play raw mono or stereo
// PCM16 from stdin at f without opening a window.
func DefaultPlayerArgs(f audio.Format) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nodisp",
		"-autoexit",
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ch_layout", channelLayout(f.Channels),
		"-i", "-",
	}
}

func channelLayout(ch int) string {
	if ch == 2 {
		return "stereo"
	}
	return "mono"
}

// CommandOutput is an [io.WriteCloser] feeding the stdin of an external
// player process.
type CommandOutput struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	once  sync.Once
	err   error
}

// Command starts name with args and returns its stdin as a PCM sink. An
// empty name defaults to "ffplay" with [DefaultPlayerArgs]. The process is
// killed when ctx is cancelled.
func Command(ctx context.Context, f audio.Format, name string, args ...string) (*CommandOutput, error) {
	if name == "" {
		name = "ffplay"
		if len(args) == 0 {
			args = DefaultPlayerArgs(f)
		}
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("playback: %s stdin: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback: start %s: %w", name, err)
	}
	return &CommandOutput{cmd: cmd, stdin: stdin}, nil
}

// Write implements [io.Writer].
func (o *CommandOutput) Write(p []byte) (int, error) {
	return o.stdin.Write(p)
}

// Close closes the player's stdin and waits for it to exit.
func (o *CommandOutput) Close() error {
	o.once.Do(func() {
		cerr := o.stdin.Close()
		werr := o.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(werr, &exitErr) {
			// Players exit non-zero when their input is cut mid-stream.
			werr = nil
		}
		o.err = errors.Join(cerr, werr)
	})
	return o.err
}

// FileOutput creates path and returns a WAV sink for f-formatted PCM16.
func FileOutput(path string, f audio.Format) (*audio.WAVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("playback: create %s: %w", path, err)
	}
	return audio.NewWAVWriter(file, f), nil
}

// Tee writes every rendered quantum to both outputs. Errors from the
// secondary are ignored so that a failing recording never stops playback.
func Tee(primary, secondary io.Writer) io.WriteCloser {
	return &tee{primary: primary, secondary: secondary}
}

type tee struct {
	primary   io.Writer
	secondary io.Writer
}

func (t *tee) Write(p []byte) (int, error) {
	_, _ = t.secondary.Write(p)
	return t.primary.Write(p)
}

func (t *tee) Close() error {
	var errs []error
	for _, w := range []io.Writer{t.primary, t.secondary} {
		if c, ok := w.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Discard is an output that drops all audio, for headless sessions.
type Discard struct{}

// Write implements [io.Writer].
func (Discard) Write(p []byte) (int, error) { return len(p), nil }
