package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/laith/pkg/provider/live"
	"github.com/MrWong99/laith/pkg/provider/llm"
	"github.com/MrWong99/laith/pkg/provider/media"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory constructs a provider of type T from its configuration entry.
type Factory[T any] func(ctx context.Context, e ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	chat  factories[llm.Provider]
	image factories[media.ImageProvider]
	video factories[media.VideoProvider]
	live  factories[live.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		chat:  newFactories[llm.Provider]("chat"),
		image: newFactories[media.ImageProvider]("image"),
		video: newFactories[media.VideoProvider]("video"),
		live:  newFactories[live.Provider]("live"),
	}
}

// RegisterChat registers a chat provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterChat(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat.m[name] = f
}

// RegisterImage registers an image provider factory under name.
func (r *Registry) RegisterImage(name string, f Factory[media.ImageProvider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image.m[name] = f
}

// RegisterVideo registers a video provider factory under name.
func (r *Registry) RegisterVideo(name string, f Factory[media.VideoProvider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video.m[name] = f
}

// RegisterLive registers a realtime voice provider factory under name.
func (r *Registry) RegisterLive(name string, f Factory[live.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.m[name] = f
}

// CreateChat instantiates the chat provider registered under e.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateChat(ctx context.Context, e ProviderEntry) (llm.Provider, error) {
	return create(r, &r.chat, ctx, e)
}

// CreateImage instantiates the image provider registered under e.Name.
func (r *Registry) CreateImage(ctx context.Context, e ProviderEntry) (media.ImageProvider, error) {
	return create(r, &r.image, ctx, e)
}

// CreateVideo instantiates the video provider registered under e.Name.
func (r *Registry) CreateVideo(ctx context.Context, e ProviderEntry) (media.VideoProvider, error) {
	return create(r, &r.video, ctx, e)
}

// CreateLive instantiates the realtime voice provider registered under e.Name.
func (r *Registry) CreateLive(ctx context.Context, e ProviderEntry) (live.Provider, error) {
	return create(r, &r.live, ctx, e)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"chat":  keys(r.chat.m),
		"image": keys(r.image.m),
		"video": keys(r.video.m),
		"live":  keys(r.live.m),
	}
}

func create[T any](r *Registry, fs *factories[T], ctx context.Context, e ProviderEntry) (T, error) {
	r.mu.RLock()
	f, ok := fs.m[e.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, fs.kind, e.Name)
	}
	return f(ctx, e)
}

func keys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
