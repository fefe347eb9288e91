package audio

// Framer accumulates float samples of arbitrary read sizes and emits frames
// of a fixed size. It holds at most one partial frame.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	size int
	buf  []float32
}

// NewFramer returns a Framer emitting frames of size samples. A size of
// zero or less selects [FrameSamples].
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{size: size, buf: make([]float32, 0, size)}
}

// Size returns the frame length in samples.
func (f *Framer) Size() int { return f.size }

// Buffered returns the number of samples in the pending partial frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Write appends samples and calls emit for every completed frame, in order.
// Each emitted slice is freshly allocated and owned by the callee. Write
// stops and returns the first error emit returns; samples after the failing
// frame are discarded.
func (f *Framer) Write(samples []float32, emit func(frame []float32) error) error {
	for len(samples) > 0 {
		n := min(f.size-len(f.buf), len(samples))
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) < f.size {
			return nil
		}
		frame := make([]float32, f.size)
		copy(frame, f.buf)
		f.buf = f.buf[:0]
		if err := emit(frame); err != nil {
			return err
		}
	}
	return nil
}

// Reset discards the pending partial frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
