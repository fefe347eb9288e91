package audio

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// mimePrefix is the media type of raw PCM16 audio on realtime transports.
const mimePrefix = "audio/pcm"

// MIMEType returns the media type tag for PCM16 audio at rate,
// e.g. "audio/pcm;rate=16000".
func MIMEType(rate int) string {
	return mimePrefix + ";rate=" + strconv.Itoa(rate)
}

// ParseRate extracts the rate parameter from a PCM media type. It returns
// fallback when the type carries no parsable rate.
func ParseRate(mime string, fallback int) int {
	_, params, ok := strings.Cut(mime, ";")
	if !ok {
		return fallback
	}
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// EncodedFrame is one audio frame in its wire form: base64 PCM16 bytes and
// the media type naming its sample rate.
type EncodedFrame struct {
	Data     string
	MIMEType string
}

// EncodeFrame converts float samples to PCM16 and base64-encodes them,
// tagging the result with rate.
func EncodeFrame(samples []float32, rate int) EncodedFrame {
	return EncodePCM(FloatToPCM16(samples), rate)
}

// EncodePCM base64-encodes an already converted PCM16 payload.
func EncodePCM(pcm []byte, rate int) EncodedFrame {
	return EncodedFrame{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MIMEType: MIMEType(rate),
	}
}

// Decode returns the raw PCM16 bytes of the frame.
func (f EncodedFrame) Decode() ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode frame: %w", err)
	}
	return pcm, nil
}

// Rate returns the sample rate named by the frame's media type, or fallback.
func (f EncodedFrame) Rate(fallback int) int {
	return ParseRate(f.MIMEType, fallback)
}
