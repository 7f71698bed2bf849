// internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Humanoid paces UI interactions so they arrive at a human rhythm rather than as a burst.
type Humanoid struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep SleepFunc
}

// Option configures a Humanoid.
type Option func(*Humanoid)

// WithRand fixes the random source, for reproducible pacing.
func WithRand(rng *rand.Rand) Option {
	return func(h *Humanoid) { h.rng = rng }
}

// WithSleep replaces the pause implementation.
func WithSleep(fn SleepFunc) Option {
	return func(h *Humanoid) { h.sleep = fn }
}

// New creates a Humanoid seeded from the clock.
func New(opts ...Option) *Humanoid {
	h := &Humanoid{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Pause waits exactly d.
func (h *Humanoid) Pause(ctx context.Context, d time.Duration) error {
	return h.sleep(ctx, d)
}

// RandomDelay waits a uniformly distributed duration in [min, max].
func (h *Humanoid) RandomDelay(ctx context.Context, min, max time.Duration) error {
	return h.sleep(ctx, h.Between(min, max))
}

// Between draws a duration in [min, max]. Reversed bounds are swapped.
func (h *Humanoid) Between(min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	span := int64(max - min)
	if span == 0 {
		return min
	}
	h.mu.Lock()
	n := h.rng.Int63n(span + 1)
	h.mu.Unlock()
	return min + time.Duration(n)
}

// CognitivePause waits around mean, jittered by a normal distribution with the given
// standard deviation. Negative draws collapse to no pause.
func (h *Humanoid) CognitivePause(ctx context.Context, mean, stdDev time.Duration) error {
	h.mu.Lock()
	d := mean + time.Duration(h.rng.NormFloat64()*float64(stdDev))
	h.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	return h.sleep(ctx, d)
}
