// Package media defines the provider interfaces for image and video
// generation backends.
//
// Image generation is a single request/response call. Video generation is a
// long-running operation: implementations start it, poll until it finishes
// and download the result, reporting progress on the way. Both honour context
// cancellation.
//
// All implementations must be safe for concurrent use.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNoImage is returned when the backend answered without any image
	// data, typically because the prompt was refused.
	ErrNoImage = errors.New("media: response contained no image")

	// ErrNoVideo is returned when a finished video operation produced no
	// downloadable video.
	ErrNoVideo = errors.New("media: operation produced no video")

	// ErrInvalidAspect is returned for an aspect ratio outside [Aspects].
	ErrInvalidAspect = errors.New("media: unsupported aspect ratio")
)

// Aspect is an output aspect ratio such as "16:9".
type Aspect string

// Supported aspect ratios.
const (
	AspectSquare    Aspect = "1:1"
	AspectLandscape Aspect = "16:9"
	AspectPortrait  Aspect = "9:16"
)

// DefaultAspect is used when a request leaves the aspect empty.
const DefaultAspect = AspectSquare

// Aspects lists the supported aspect ratios.
var Aspects = []Aspect{AspectSquare, AspectLandscape, AspectPortrait}

// ParseAspect validates s. The empty string yields [DefaultAspect].
func ParseAspect(s string) (Aspect, error) {
	if s == "" {
		return DefaultAspect, nil
	}
	a := Aspect(s)
	if !slices.Contains(Aspects, a) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAspect, s)
	}
	return a, nil
}

// Image is a generated picture.
type Image struct {
	// Data is the encoded image file.
	Data []byte

	// MIMEType names the encoding, e.g. "image/png".
	MIMEType string
}

// DataURL renders the image as a data: URL suitable for an <img> src.
func (i Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Video is a generated clip.
type Video struct {
	// Data is the encoded video file.
	Data []byte

	// MIMEType names the container, e.g. "video/mp4".
	MIMEType string
}

// ImageRequest describes an image to generate.
type ImageRequest struct {
	// Prompt describes the picture.
	Prompt string

	// Aspect is the output aspect ratio. Empty means [DefaultAspect].
	Aspect Aspect
}

// VideoRequest describes a clip to generate.
type VideoRequest struct {
	// Prompt describes the scene.
	Prompt string

	// Aspect is the output aspect ratio. Empty means [AspectLandscape].
	Aspect Aspect

	// Resolution is the output resolution, e.g. "720p". Empty means the
	// provider default.
	Resolution string
}

// ProgressFunc receives human-readable progress messages while a video
// renders. It must not block.
type ProgressFunc func(msg string)

// ImageProvider generates images.
type ImageProvider interface {
	// GenerateImage renders req and returns the first image produced. A
	// response without image data returns ErrNoImage.
	GenerateImage(ctx context.Context, req ImageRequest) (*Image, error)
}

// VideoProvider generates videos.
type VideoProvider interface {
	// GenerateVideo renders req, calling progress (if non-nil) each time the
	// operation is polled, and returns the downloaded clip.
	GenerateVideo(ctx context.Context, req VideoRequest, progress ProgressFunc) (*Video, error)
}
