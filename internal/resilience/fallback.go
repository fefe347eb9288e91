package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned once every backend in a [FallbackGroup] has
// failed or was skipped by its breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker template applied to every backend of a
// [FallbackGroup]. The breaker's Name is set per backend.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// EntryStatus is a snapshot of one backend in a [FallbackGroup].
type EntryStatus struct {
	Name  string
	State State
}

type member[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable backends, each
// guarded by its own [CircuitBreaker]. Calls go to the first backend that
// accepts them.
//
// Backends must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup returns a group whose first backend is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends backend after the ones already registered.
func (fg *FallbackGroup[T]) AddFallback(name string, backend T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, backend: backend, breaker: NewCircuitBreaker(bc)})
}

// Status reports each backend's breaker state in call order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, 0, len(fg.members))
	for _, m := range fg.members {
		out = append(out, EntryStatus{Name: m.name, State: m.breaker.State()})
	}
	return out
}

// Healthy reports whether any backend's breaker would admit a call.
func (fg *FallbackGroup[T]) Healthy() bool {
	for _, m := range fg.members {
		if m.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(b T) (struct{}, error) { return struct{}{}, fn(b) })
	return err
}

// ExecuteWithResult calls fn on each backend in order and returns the first
// success. Backends whose breaker is open are skipped. When ctx ends the
// context error is returned as is and no further backend is tried; running
// out of backends yields [ErrAllFailed] wrapping the last failure.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var last error
	for _, m := range fg.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := attempt(m, fn)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		case IsCallerError(err) && ctx.Err() != nil:
			return zero, err
		default:
			slog.Warn("provider failed, failing over", "provider", m.name, "err", err)
		}
		last = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

func attempt[T, R any](m member[T], fn func(T) (R, error)) (R, error) {
	var res R
	err := m.breaker.Execute(func() error {
		var err error
		res, err = fn(m.backend)
		return err
	})
	return res, err
}
