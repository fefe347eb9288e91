// Package mock provides test doubles for the media provider interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/laith/pkg/provider/media"
)

// ImageProvider is a mock implementation of media.ImageProvider.
type ImageProvider struct {
	mu sync.Mutex

	// Image is returned by GenerateImage.
	Image *media.Image

	// Err, if non-nil, is returned instead of Image.
	Err error

	// Calls records every request in order.
	Calls []media.ImageRequest
}

// GenerateImage records req and returns Image, Err.
func (p *ImageProvider) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Image, p.Err
}

// Requests returns a copy of the recorded calls.
func (p *ImageProvider) Requests() []media.ImageRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.ImageRequest(nil), p.Calls...)
}

// VideoProvider is a mock implementation of media.VideoProvider.
type VideoProvider struct {
	mu sync.Mutex

	// Video is returned by GenerateVideo.
	Video *media.Video

	// Err, if non-nil, is returned instead of Video.
	Err error

	// Progress lists the messages reported before returning.
	Progress []string

	// Block, if non-nil, is received from before returning, unless ctx ends
	// first.
	Block chan struct{}

	// Calls records every request in order.
	Calls []media.VideoRequest
}

// GenerateVideo records req, reports Progress and returns Video, Err.
func (p *VideoProvider) GenerateVideo(ctx context.Context, req media.VideoRequest, progress media.ProgressFunc) (*media.Video, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	msgs := append([]string(nil), p.Progress...)
	block := p.Block
	v, err := p.Video, p.Err
	p.mu.Unlock()

	for _, m := range msgs {
		if progress != nil {
			progress(m)
		}
	}
	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}
	return v, err
}

// Requests returns a copy of the recorded calls.
func (p *VideoProvider) Requests() []media.VideoRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.VideoRequest(nil), p.Calls...)
}

var (
	_ media.ImageProvider = (*ImageProvider)(nil)
	_ media.VideoProvider = (*VideoProvider)(nil)
)
