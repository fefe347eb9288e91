package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// pcmScale maps between int16 samples and floats in [-1, 1].
const pcmScale = 32768

// ErrMisalignedPCM is returned when a PCM16 payload's byte count is not a
// whole number of sample frames.
var ErrMisalignedPCM = errors.New("audio: misaligned PCM16 payload")

// PCM16Sample converts one float sample to int16 by scaling with 32768.
// Values outside the representable range saturate at -32768 and 32767;
// NaN maps to silence.
func PCM16Sample(f float32) int16 {
	if f != f {
		return 0
	}
	v := float64(f) * pcmScale
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FloatToPCM16 converts float samples to little-endian signed 16-bit PCM.
func FloatToPCM16(samples []float32) []byte {
	return AppendPCM16(make([]byte, 0, len(samples)*2), samples)
}

// AppendPCM16 appends the PCM16 encoding of samples to dst and returns the
// extended slice.
func AppendPCM16(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(PCM16Sample(s)))
	}
	return dst
}

// PCM16ToFloat decodes interleaved little-endian PCM16 into planar float
// samples, dividing each by 32768. The result holds one slice per channel.
func PCM16ToFloat(pcm []byte, channels int) ([][]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes for %d channel(s)", ErrMisalignedPCM, len(pcm), channels)
	}
	frames := len(pcm) / (2 * channels)
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off:]))
			out[c][i] = float32(s) / pcmScale
		}
	}
	return out, nil
}

// DecodeBuffer decodes a PCM16 payload into a [Buffer] at the given format.
func DecodeBuffer(pcm []byte, f Format) (*Buffer, error) {
	chans, err := PCM16ToFloat(pcm, f.Channels)
	if err != nil {
		return nil, err
	}
	return &Buffer{Channels: chans, SampleRate: f.SampleRate}, nil
}
