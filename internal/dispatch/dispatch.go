// Package dispatch routes posts to platform publishers.
//
// The engine talks to a Registry, never to a concrete platform client; real
// integrations and the dry-run simulator are interchangeable behind the
// Dispatcher interface.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postpilot/internal/post"
	logx "postpilot/pkg/logx"
)

var ErrNoDispatcher = errors.New("no dispatcher registered for platform")

// Dispatcher publishes one post to one platform.
// Implementations must be safe for concurrent use. A nil error means the
// post is live; any error counts as a retryable dispatch failure.
type Dispatcher interface {
	Platform() post.Platform
	Post(ctx context.Context, postID string, content post.Content) (post.Result, error)
}

// RateConfig paces dispatches to one platform.
type RateConfig struct {
	Every time.Duration // minimum gap between dispatches; 0 disables pacing
	Burst int           // immediate dispatches allowed before pacing kicks in; min 1
}

type entry struct {
	d   Dispatcher
	lim *rate.Limiter
}

// Registry maps platforms to dispatchers and paces calls per platform, so a
// burst of simultaneously due posts cannot hammer one API.
type Registry struct {
	log logx.Logger

	mu      sync.RWMutex
	entries map[post.Platform]*entry
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, entries: map[post.Platform]*entry{}}
}

// Register adds or replaces the dispatcher for its platform.
func (r *Registry) Register(d Dispatcher, rc RateConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[d.Platform()] = &entry{d: d, lim: newLimiter(rc)}
}

// SetRate swaps the pacing for a platform without touching its dispatcher.
// Used by config hot reload.
func (r *Registry) SetRate(p post.Platform, rc RateConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[p]; ok {
		e.lim = newLimiter(rc)
	}
}

// Platforms lists registered platforms in canonical order.
func (r *Registry) Platforms() []post.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]post.Platform, 0, len(r.entries))
	for _, p := range post.Platforms() {
		if _, ok := r.entries[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Dispatch waits for the platform's rate slot, then posts.
func (r *Registry) Dispatch(ctx context.Context, p post.Platform, postID string, content post.Content) (post.Result, error) {
	r.mu.RLock()
	e, ok := r.entries[p]
	var d Dispatcher
	var lim *rate.Limiter
	if ok {
		d, lim = e.d, e.lim
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDispatcher, p)
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return d.Post(ctx, postID, content)
}

func newLimiter(rc RateConfig) *rate.Limiter {
	if rc.Every <= 0 {
		return nil
	}
	burst := rc.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(rc.Every), burst)
}
