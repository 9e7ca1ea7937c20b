// Package limiter throttles outbound calls to the language-model service.
// It enforces a minimum inter-call spacing, a rolling per-minute cap, and an
// extended cooldown after the service signals rate limiting. A throttled call
// is a miss, not an error; callers degrade gracefully.
package limiter

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const windowSize = time.Minute

// Limiter is process-local throttling state. It is not shared across
// instances; each deployment keeps its own window.
type Limiter struct {
	mu            sync.Mutex
	spacing       *rate.Limiter
	windowCap     int
	windowStart   time.Time
	callCount     int
	cooldown      time.Duration
	cooldownUntil time.Time
	throttled     int64
	now           func() time.Time
	logger        *zap.Logger
}

// New creates a limiter with the given minimum spacing between calls,
// per-minute call cap, and cooldown applied on a rate-limit signal.
func New(minSpacing time.Duration, windowCap int, cooldown time.Duration, logger *zap.Logger) *Limiter {
	if windowCap <= 0 {
		windowCap = 20
	}
	var spacing *rate.Limiter
	if minSpacing > 0 {
		spacing = rate.NewLimiter(rate.Every(minSpacing), 1)
	}
	return &Limiter{
		spacing:   spacing,
		windowCap: windowCap,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source, for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow reports whether a call may proceed now, consuming budget if so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if now.Before(l.cooldownUntil) {
		l.throttled++
		return false
	}

	// Roll the window when a full minute has elapsed.
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= windowSize {
		l.windowStart = now
		l.callCount = 0
	}
	if l.callCount >= l.windowCap {
		l.throttled++
		l.logger.Debug("per-minute cap reached",
			zap.Int("cap", l.windowCap),
			zap.Time("window_start", l.windowStart))
		return false
	}

	if l.spacing != nil && !l.spacing.AllowN(now, 1) {
		l.throttled++
		return false
	}

	l.callCount++
	return true
}

// TripCooldown extends the throttle window after the service reported a
// rate limit. Safe to call repeatedly; the furthest deadline wins.
func (l *Limiter) TripCooldown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(l.cooldown)
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
		l.logger.Warn("rate-limit signal received, entering cooldown",
			zap.Duration("cooldown", l.cooldown))
	}
}

// InCooldown reports whether the limiter is currently in a cooldown period.
func (l *Limiter) InCooldown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Before(l.cooldownUntil)
}

// Throttled returns the cumulative number of refused calls.
func (l *Limiter) Throttled() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.throttled
}
