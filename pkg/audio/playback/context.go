package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
)

// defaultQuantum is the render block length of a [Context].
const defaultQuantum = 20 * time.Millisecond

// Context is a software output [Device]. It mixes scheduled buffers into
// fixed render quanta and writes each quantum as interleaved PCM16 to its
// output. Its clock is the number of frames rendered so far divided by the
// sample rate, so Now advances exactly as fast as audio is delivered.
//
// By default a Context renders in real time, paced by a ticker. A Context
// created with [WithManualRender] only renders when [Context.Render] is
// called, which makes the clock fully deterministic.
type Context struct {
	out     io.Writer
	format  audio.Format
	quantum int

	mu       sync.Mutex
	rendered int64
	voices   map[*voice]struct{}
	closed   bool
	writeErr error

	stop      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// ContextOption configures a [Context].
type ContextOption func(*contextOptions)

type contextOptions struct {
	quantum time.Duration
	manual  bool
}

// WithQuantum sets the render block length. Defaults to 20ms.
func WithQuantum(d time.Duration) ContextOption {
	return func(o *contextOptions) {
		if d > 0 {
			o.quantum = d
		}
	}
}

// WithManualRender disables the real-time render loop.
func WithManualRender() ContextOption {
	return func(o *contextOptions) { o.manual = true }
}

// NewContext returns a Context rendering format-shaped PCM16 to out. If out
// implements [io.Closer] it is closed by [Context.Close].
func NewContext(out io.Writer, format audio.Format, opts ...ContextOption) (*Context, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("playback: sample rate must be positive, got %d", format.SampleRate)
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	o := contextOptions{quantum: defaultQuantum}
	for _, fn := range opts {
		fn(&o)
	}
	c := &Context{
		out:      out,
		format:   format,
		quantum:  max(format.Frames(o.quantum), 1),
		voices:   make(map[*voice]struct{}),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	if o.manual {
		close(c.loopDone)
	} else {
		go c.loop(o.quantum)
	}
	return c, nil
}

// Now implements [Device].
func (c *Context) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format.Duration(int(c.rendered))
}

// SampleRate implements [Device].
func (c *Context) SampleRate() int { return c.format.SampleRate }

// Format returns the output format.
func (c *Context) Format() audio.Format { return c.format }

// Start implements [Device]. Buffers at a different sample rate are
// resampled to the context rate. Mono buffers are duplicated across output
// channels.
func (c *Context) Start(buf *audio.Buffer, at time.Duration) (Handle, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, errors.New("playback: empty buffer")
	}
	chans := buf.Channels
	if buf.SampleRate != c.format.SampleRate {
		chans = make([][]float32, len(buf.Channels))
		for i, ch := range buf.Channels {
			chans[i] = audio.ResampleFloat(ch, buf.SampleRate, c.format.SampleRate)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	v := &voice{
		ctx:   c,
		chans: chans,
		start: max(int64(c.format.Frames(at)), c.rendered),
		done:  make(chan struct{}),
	}
	c.voices[v] = struct{}{}
	return v, nil
}

// Render mixes and writes the next n frames. It is called by the real-time
// loop and may be called directly on a context created with
// [WithManualRender].
func (c *Context) Render(n int) error {
	if n <= 0 {
		return nil
	}
	ch := c.format.Channels

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	from := c.rendered
	mix := make([]float32, n*ch)
	for v := range c.voices {
		if v.mixInto(mix, from, n, ch) {
			delete(c.voices, v)
			v.finish()
		}
	}
	c.rendered += int64(n)
	c.mu.Unlock()

	if _, err := c.out.Write(audio.FloatToPCM16(mix)); err != nil {
		return fmt.Errorf("playback: write output: %w", err)
	}
	return nil
}

// Active returns the number of buffers scheduled or playing.
func (c *Context) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.voices)
}

func (c *Context) loop(quantum time.Duration) {
	defer close(c.loopDone)
	t := time.NewTicker(quantum)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			if err := c.Render(c.quantum); err != nil {
				if !errors.Is(err, ErrClosed) {
					slog.Warn("playback output failed, stopping render loop", "err", err)
					c.mu.Lock()
					c.writeErr = err
					c.mu.Unlock()
				}
				return
			}
		}
	}
}

// Close implements [Device]. It stops the render loop, finishes every
// scheduled buffer and closes the output if it is closable.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.loopDone

		c.mu.Lock()
		c.closed = true
		for v := range c.voices {
			delete(c.voices, v)
			v.finish()
		}
		errs := []error{c.writeErr}
		c.mu.Unlock()

		if cl, ok := c.out.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// voice is one scheduled buffer inside a Context.
type voice struct {
	ctx   *Context
	chans [][]float32
	start int64
	once  sync.Once
	done  chan struct{}
}

// mixInto adds the voice's samples for frames [from, from+n) to mix and
// reports whether the voice has played to its end.
func (v *voice) mixInto(mix []float32, from int64, n, outCh int) bool {
	length := int64(len(v.chans[0]))
	for i := range n {
		pos := from + int64(i) - v.start
		if pos < 0 {
			continue
		}
		if pos >= length {
			return true
		}
		for c := range outCh {
			src := v.chans[min(c, len(v.chans)-1)]
			mix[i*outCh+c] += src[pos]
		}
	}
	return from+int64(n)-v.start >= length
}

func (v *voice) finish() {
	v.once.Do(func() { close(v.done) })
}

// Stop implements [Handle].
func (v *voice) Stop() {
	v.ctx.mu.Lock()
	delete(v.ctx.voices, v)
	v.ctx.mu.Unlock()
	v.finish()
}

// Done implements [Handle].
func (v *voice) Done() <-chan struct{} { return v.done }
