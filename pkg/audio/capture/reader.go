package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
)

// Encoding names a raw PCM sample layout.
type Encoding string

const (
	// F32LE is 32-bit little-endian IEEE float.
	F32LE Encoding = "f32le"

	// S16LE is signed 16-bit little-endian integer.
	S16LE Encoding = "s16le"
)

// ParseEncoding parses an encoding name. The empty string selects [F32LE].
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", F32LE:
		return F32LE, nil
	case S16LE:
		return S16LE, nil
	default:
		return "", fmt.Errorf("capture: unknown sample encoding %q", s)
	}
}

func (e Encoding) sampleSize() int {
	if e == S16LE {
		return 2
	}
	return 4
}

// Reader is a [Stream] decoding raw PCM from an [io.Reader].
type Reader struct {
	src    io.Reader
	format audio.Format
	enc    Encoding
	paced  bool

	mu      sync.Mutex
	buf     []byte
	started time.Time
	read    int64
	eof     bool

	closeOnce sync.Once
	closed    chan struct{}
}

// ReaderOption configures a [Reader].
type ReaderOption func(*Reader)

// WithPacing makes Read block so that samples are delivered no faster than
// real time. Use it when replaying a file as if it were a live
// microphone.
func WithPacing() ReaderOption {
	return func(r *Reader) { r.paced = true }
}

// NewReader returns a Reader decoding enc-encoded samples of format f from
// src. If src implements [io.Closer] it is closed by [Reader.Close].
func NewReader(src io.Reader, f audio.Format, enc Encoding, opts ...ReaderOption) *Reader {
	if f.Channels <= 0 {
		f.Channels = 1
	}
	r := &Reader{
		src:    src,
		format: f,
		enc:    enc,
		closed: make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Format implements [Stream].
func (r *Reader) Format() audio.Format { return r.format }

// Read implements [Stream].
func (r *Reader) Read(p []float32) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.closed:
		return 0, io.EOF
	default:
	}
	if r.eof {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.paced {
		r.pace()
	}

	size := r.enc.sampleSize()
	need := len(p) * size
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]

	n, err := io.ReadFull(r.src, buf)
	samples := n / size
	for i := range samples {
		off := i * size
		switch r.enc {
		case S16LE:
			p[i] = float32(int16(binary.LittleEndian.Uint16(buf[off:]))) / 32768
		default:
			p[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		}
	}
	r.read += int64(samples)

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		r.eof = true
		if samples > 0 {
			return samples, nil
		}
		return 0, io.EOF
	default:
		select {
		case <-r.closed:
			return samples, io.EOF
		default:
		}
		return samples, fmt.Errorf("capture: read: %w", err)
	}
}

// pace sleeps until the wall clock catches up with the samples delivered.
func (r *Reader) pace() {
	if r.started.IsZero() {
		r.started = time.Now()
		return
	}
	frames := int(r.read) / r.format.Channels
	ahead := r.format.Duration(frames) - time.Since(r.started)
	if ahead <= 0 {
		return
	}
	t := time.NewTimer(ahead)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.closed:
	}
}

// Close implements [Stream].
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		if c, ok := r.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
