package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// wavHeaderSize is the size of a canonical 44-byte PCM WAV header.
const wavHeaderSize = 44

// wavHeader is the canonical RIFF/WAVE header for 16-bit PCM.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func newWAVHeader(f Format, dataSize uint32) wavHeader {
	ch := uint16(max(f.Channels, 1))
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   ch,
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate) * uint32(ch) * 2,
		BlockAlign:    ch * 2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAV wraps a PCM16 payload in a WAV container.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if f.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: wav: sample rate must be positive, got %d", f.SampleRate)
	}
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out, err := binary.Append(out, binary.LittleEndian, newWAVHeader(f, uint32(len(pcm))))
	if err != nil {
		return nil, fmt.Errorf("audio: wav: write header: %w", err)
	}
	return append(out, pcm...), nil
}

// WAVWriter streams PCM16 into a WAV file. The header is written up front
// with a zero data length and patched on Close when the destination
// supports seeking.
//
// WAVWriter is safe for concurrent use.
type WAVWriter struct {
	mu      sync.Mutex
	w       io.Writer
	format  Format
	written uint32
	started bool
	closed  bool
}

// NewWAVWriter returns a WAVWriter writing f-formatted PCM16 to w.
func NewWAVWriter(w io.Writer, f Format) *WAVWriter {
	return &WAVWriter{w: w, format: f}
}

// Write appends raw PCM16 bytes to the data chunk.
func (ww *WAVWriter) Write(pcm []byte) (int, error) {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return 0, errors.New("audio: wav: write after close")
	}
	if !ww.started {
		if err := binary.Write(ww.w, binary.LittleEndian, newWAVHeader(ww.format, 0)); err != nil {
			return 0, fmt.Errorf("audio: wav: write header: %w", err)
		}
		ww.started = true
	}
	n, err := ww.w.Write(pcm)
	ww.written += uint32(n)
	return n, err
}

// Close finalizes the header sizes if the destination is seekable and
// closes it if it is an [io.Closer].
func (ww *WAVWriter) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true

	var errs []error
	if ws, ok := ww.w.(io.WriteSeeker); ok && ww.started {
		if _, err := ws.Seek(0, io.SeekStart); err != nil {
			errs = append(errs, fmt.Errorf("audio: wav: seek: %w", err))
		} else if err := binary.Write(ws, binary.LittleEndian, newWAVHeader(ww.format, ww.written)); err != nil {
			errs = append(errs, fmt.Errorf("audio: wav: patch header: %w", err))
		}
	}
	if c, ok := ww.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
