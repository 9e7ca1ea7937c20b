package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages registered providers and routes requests through the
// default one, falling back down a configured chain on failure. A rate-limit
// signal is never retried on a fallback; it propagates so the caller can
// enter cooldown.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallbacks []string
	defaults  string
	logger    *zap.Logger
}

// NewRouter creates an empty provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider",
		zap.String("id", p.ID()),
		zap.String("name", p.Name()))
}

// SetDefault selects the primary provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// SetFallbacks configures the fallback chain tried after the primary fails.
func (r *Router) SetFallbacks(providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = providerIDs
}

// Complete routes a request through the primary provider, then fallbacks.
func (r *Router) Complete(ctx context.Context, req *Request) (*Response, error) {
	r.mu.RLock()
	primary := r.providers[r.defaults]
	fallbacks := r.fallbacks
	r.mu.RUnlock()

	if primary == nil {
		return nil, fmt.Errorf("no provider registered")
	}

	resp, err := primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, ErrRateLimited) {
		return nil, err
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("provider", primary.ID()), zap.Error(err))

	for _, fbID := range fallbacks {
		r.mu.RLock()
		fb := r.providers[fbID]
		r.mu.RUnlock()
		if fb == nil {
			continue
		}
		resp, err = fb.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		r.logger.Warn("fallback provider failed",
			zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all providers failed: %w", err)
}
