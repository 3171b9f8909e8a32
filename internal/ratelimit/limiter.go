package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between calls to the candle data provider.
const DefaultInterval = time.Second

// Limiter spaces calls so that consecutive callers are at least one interval apart.
type Limiter struct {
	limiter *rate.Limiter
}

// New constructs a limiter allowing one call per interval with no burst.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Throttle blocks until the caller may proceed or ctx is done.
func (l *Limiter) Throttle(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

var shared = New(DefaultInterval)

// Default returns the process-wide limiter shared by every provider client.
func Default() *Limiter {
	return shared
}
