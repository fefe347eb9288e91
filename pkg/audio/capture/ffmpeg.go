package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
)

// defaultFirstDataTimeout bounds how long Open waits for the first captured
// bytes before treating the microphone as unavailable.
const defaultFirstDataTimeout = 5 * time.Second

// FFmpeg is a [Device] recording from the platform microphone through an
// ffmpeg subprocess that writes raw f32le samples to stdout.
type FFmpeg struct {
	// Command is the executable to run. Defaults to "ffmpeg".
	Command string

	// InputArgs select the input device, e.g. {"-f", "pulse", "-i",
	// "default"}. Defaults to the platform's default microphone.
	InputArgs []string

	// CommandArgs, if set, replaces the generated argument list so that any
	// recorder writing raw samples to stdout (arecord, sox) can be used. The
	// program must record at the requested format.
	CommandArgs []string

	// Encoding is the sample layout the command writes. Defaults to F32LE.
	Encoding Encoding

	// FirstDataTimeout bounds the wait for the first samples. Defaults to 5s.
	FirstDataTimeout time.Duration
}

// DefaultInputArgs returns the ffmpeg input selection for the default
// microphone on the running platform.
func DefaultInputArgs() []string {
	switch runtime.GOOS {
	case "darwin":
		// none:<index> avoids opening a camera.
		return []string{"-f", "avfoundation", "-i", "none:0"}
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=default"}
	default:
		return []string{"-f", "pulse", "-i", "default"}
	}
}

// Args returns the complete ffmpeg argument list for capturing f.
func (d *FFmpeg) Args(f audio.Format) []string {
	in := d.InputArgs
	if len(in) == 0 {
		in = DefaultInputArgs()
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, in...)
	return append(args,
		"-ac", strconv.Itoa(max(f.Channels, 1)),
		"-ar", strconv.Itoa(f.SampleRate),
		"-f", string(F32LE),
		"-",
	)
}

// Open implements [Device]. It starts ffmpeg and waits for the first
// captured bytes so that a denied or missing microphone is reported here
// rather than as an early end of stream.
func (d *FFmpeg) Open(ctx context.Context, want audio.Format) (Stream, error) {
	name := d.Command
	if name == "" {
		name = "ffmpeg"
	}
	if want.SampleRate <= 0 {
		want = audio.Mono(audio.CaptureRate)
	}
	if want.Channels <= 0 {
		want.Channels = 1
	}

	args := d.CommandArgs
	if len(args) == 0 {
		args = d.Args(want)
	}
	enc := d.Encoding
	if enc == "" || len(d.CommandArgs) == 0 {
		enc = F32LE
	}

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: %s stdout: %w", name, err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %w", ErrUnavailable, name, err)
	}

	s := &ffmpegStream{cmd: cmd}
	br := bufio.NewReaderSize(stdout, 64*1024)

	timeout := d.FirstDataTimeout
	if timeout <= 0 {
		timeout = defaultFirstDataTimeout
	}
	peeked := make(chan error, 1)
	go func() {
		_, err := br.Peek(1)
		peeked <- err
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-peeked:
		if err != nil {
			_ = s.kill()
			return nil, fmt.Errorf("%w: %s produced no audio: %s", ErrUnavailable, name, stderr.String())
		}
	case <-timer.C:
		_ = s.kill()
		return nil, fmt.Errorf("%w: no audio from %s within %v", ErrUnavailable, name, timeout)
	case <-ctx.Done():
		_ = s.kill()
		return nil, ctx.Err()
	}

	s.Reader = NewReader(io.NopCloser(br), want, enc)
	slog.Debug("capture started", "command", name, "format", want.String(), "encoding", enc)
	return s, nil
}

// ffmpegStream owns the subprocess behind a Reader.
type ffmpegStream struct {
	*Reader
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

// Close stops the subprocess, releasing the microphone.
func (s *ffmpegStream) Close() error {
	if s.Reader != nil {
		_ = s.Reader.Close()
	}
	return s.kill()
}

func (s *ffmpegStream) kill() error {
	s.once.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.err = fmt.Errorf("capture: wait: %w", err)
		}
	})
	return s.err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
