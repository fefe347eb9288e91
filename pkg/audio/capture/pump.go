package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/laith/pkg/audio"
)

// readChunk is the number of sample frames requested per Read.
const readChunk = 1024

// FrameSink receives encoded capture frames. A realtime transport session
// is the usual sink.
type FrameSink interface {
	Send(frame audio.EncodedFrame) error
}

// FrameSinkFunc adapts a function to the [FrameSink] interface.
type FrameSinkFunc func(frame audio.EncodedFrame) error

// Send implements [FrameSink].
func (f FrameSinkFunc) Send(frame audio.EncodedFrame) error { return f(frame) }

// Pump reads a [Stream], downmixes and resamples it to mono at the target
// rate, cuts it into fixed-size frames and hands each encoded frame to a
// [FrameSink] as soon as it is complete. At most one partial frame is held.
type Pump struct {
	stream  Stream
	sink    FrameSink
	rate    int
	framer  *audio.Framer
	onFrame func()

	warnOnce sync.Once
}

// PumpOption configures a [Pump].
type PumpOption func(*Pump)

// WithFrameSize sets the frame length in samples. Defaults to
// [audio.FrameSamples].
func WithFrameSize(n int) PumpOption {
	return func(p *Pump) { p.framer = audio.NewFramer(n) }
}

// WithTargetRate sets the rate frames are sent at. Defaults to
// [audio.CaptureRate].
func WithTargetRate(rate int) PumpOption {
	return func(p *Pump) {
		if rate > 0 {
			p.rate = rate
		}
	}
}

// WithOnFrame registers a callback invoked after each frame is accepted by
// the sink.
func WithOnFrame(fn func()) PumpOption {
	return func(p *Pump) { p.onFrame = fn }
}

// NewPump returns a Pump moving audio from stream to sink.
func NewPump(stream Stream, sink FrameSink, opts ...PumpOption) *Pump {
	p := &Pump{
		stream: stream,
		sink:   sink,
		rate:   audio.CaptureRate,
		framer: audio.NewFramer(audio.FrameSamples),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run pumps until the stream ends, ctx is cancelled, or the sink rejects a
// frame. End of stream and cancellation return nil. Closing the stream from
// another goroutine unblocks Run.
func (p *Pump) Run(ctx context.Context) error {
	defer p.framer.Reset()

	f := p.stream.Format()
	ch := max(f.Channels, 1)
	buf := make([]float32, readChunk*ch)

	emit := func(frame []float32) error {
		if err := p.sink.Send(audio.EncodeFrame(frame, p.rate)); err != nil {
			return fmt.Errorf("capture: send frame: %w", err)
		}
		if p.onFrame != nil {
			p.onFrame()
		}
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := p.stream.Read(buf)
		if n > 0 {
			samples := audio.Downmix(buf[:n-n%ch], ch)
			if f.SampleRate != p.rate {
				p.warnOnce.Do(func() {
					slog.Warn("capture rate mismatch: resampling",
						"from", f.SampleRate,
						"to", p.rate,
					)
				})
				samples = audio.ResampleFloat(samples, f.SampleRate, p.rate)
			}
			if werr := p.framer.Write(samples, emit); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
