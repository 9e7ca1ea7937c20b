package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hollis-ai/reverie/internal/cache"
	"github.com/hollis-ai/reverie/internal/limiter"
	"go.uber.org/zap"
)

// Completer is the minimal surface the invoker needs from the router.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// InvokerOptions bound each invocation.
type InvokerOptions struct {
	Timeout     time.Duration
	Retries     int // total attempts per Invoke
	Backoff     time.Duration
	StateTTL    time.Duration // cache TTL for ClassState results
	CreativeTTL time.Duration // cache TTL for ClassCreative results
}

// Invoker is the rate-limited, cached front door to the model service.
// A throttled or rate-limited call yields (nil, nil): no result, not an
// error, so callers fall back instead of failing the cycle.
type Invoker struct {
	completer Completer
	cache     *cache.Cache
	limiter   *limiter.Limiter
	opts      InvokerOptions
	logger    *zap.Logger
}

// NewInvoker wires a completer behind the cache and limiter.
func NewInvoker(completer Completer, c *cache.Cache, l *limiter.Limiter, opts InvokerOptions, logger *zap.Logger) *Invoker {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 2
	}
	if opts.StateTTL == 0 {
		opts.StateTTL = time.Hour
	}
	if opts.CreativeTTL == 0 {
		opts.CreativeTTL = 24 * time.Hour
	}
	return &Invoker{
		completer: completer,
		cache:     c,
		limiter:   l,
		opts:      opts,
		logger:    logger,
	}
}

func (i *Invoker) ttl(class CallClass) time.Duration {
	if class == ClassCreative {
		return i.opts.CreativeTTL
	}
	return i.opts.StateTTL
}

// Invoke runs a request through cache, limiter, and the completer with
// bounded retries. It returns ErrTimeout once the retry budget is exhausted
// on deadline failures.
func (i *Invoker) Invoke(ctx context.Context, req *Request, class CallClass) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	key := cache.Fingerprint(payload)

	if v, ok := i.cache.Get(key); ok {
		return v.(*Response), nil
	}

	var lastErr error
	for attempt := 1; attempt <= i.opts.Retries; attempt++ {
		if !i.limiter.Allow() {
			i.logger.Debug("invocation throttled", zap.Int("attempt", attempt))
			return nil, nil
		}

		cctx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
		resp, err := i.completer.Complete(cctx, req)
		cancel()

		if err == nil {
			i.cache.Set(key, resp, i.ttl(class))
			return resp, nil
		}
		if errors.Is(err, ErrRateLimited) {
			i.limiter.TripCooldown()
			return nil, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		lastErr = err
		i.logger.Warn("invocation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("retries", i.opts.Retries),
			zap.Error(err))

		if attempt < i.opts.Retries && i.opts.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ErrTimeout
			case <-time.After(i.opts.Backoff):
			}
		}
	}
	return nil, lastErr
}
