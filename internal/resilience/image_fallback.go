package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/laith/pkg/provider/media"
)

// ImageFallback implements [media.ImageProvider] with failover across image
// backends.
type ImageFallback struct {
	group *FallbackGroup[media.ImageProvider]
}

var _ media.ImageProvider = (*ImageFallback)(nil)

// NewImageFallback creates an [ImageFallback] with primary as the preferred
// backend. A refused prompt ([media.ErrNoImage]) moves on to the next backend
// without counting against the breaker.
func NewImageFallback(primary media.ImageProvider, primaryName string, cfg FallbackConfig) *ImageFallback {
	if cfg.CircuitBreaker.Neutral == nil {
		cfg.CircuitBreaker.Neutral = func(err error) bool {
			return IsCallerError(err) || errors.Is(err, media.ErrNoImage)
		}
	}
	return &ImageFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional image provider as a fallback.
func (f *ImageFallback) AddFallback(name string, provider media.ImageProvider) {
	f.group.AddFallback(name, provider)
}

// Healthy reports whether any backend would accept a call.
func (f *ImageFallback) Healthy() bool { return f.group.Healthy() }

// GenerateImage asks each healthy backend in turn.
func (f *ImageFallback) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.Image, error) {
	return ExecuteWithResult(ctx, f.group, func(p media.ImageProvider) (*media.Image, error) {
		return p.GenerateImage(ctx, req)
	})
}
