// Package ratelimit bounds outbound API calls to a fixed number per trailing window.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultWindow is the trailing window admissions are counted over.
const DefaultWindow = time.Minute

// ErrInvalidCeiling is returned when a limiter is constructed with a non-positive ceiling.
var ErrInvalidCeiling = errors.New("ratelimit: ceiling must be a positive integer")

// Clock abstracts time so tests can run the window without real waiting.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the trailing window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock injects a clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithWaitObserver registers a callback invoked with how long each admission waited.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(l *Limiter) { l.observe = fn }
}

// Limiter admits at most ceiling calls inside any trailing window. Callers that arrive
// while the window is full are suspended on a timer and admitted in arrival order.
type Limiter struct {
	ceiling int
	window  time.Duration
	clock   Clock
	observe func(time.Duration)

	// turn serializes waiters. Blocked channel senders are released first in first out,
	// which gives arrival order admission.
	turn chan struct{}

	mu      sync.Mutex
	history []time.Time
}

// New creates a limiter admitting ceiling calls per window (one minute by default).
func New(ceiling int, opts ...Option) (*Limiter, error) {
	if ceiling <= 0 {
		return nil, ErrInvalidCeiling
	}
	l := &Limiter{
		ceiling: ceiling,
		window:  DefaultWindow,
		clock:   realClock{},
		turn:    make(chan struct{}, 1),
		history: make([]time.Time, 0, ceiling),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Admit blocks until a call may proceed without exceeding the ceiling, then records it.
// It only fails when ctx is done before admission.
func (l *Limiter) Admit(ctx context.Context) error {
	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	start := l.clock.Now()
	for {
		wait, admitted := l.tryAdmit()
		if admitted {
			if l.observe != nil {
				l.observe(l.clock.Now().Sub(start))
			}
			return nil
		}
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAdmit prunes expired entries and either records an admission or reports how long
// until the oldest entry leaves the window.
func (l *Limiter) tryAdmit() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	if len(l.history) < l.ceiling {
		l.history = append(l.history, now)
		return 0, true
	}

	wait := l.history[0].Add(l.window).Sub(now)
	if wait <= 0 {
		// Unreachable after prune, but never spin on a zero timer.
		wait = time.Millisecond
	}
	return wait, false
}

// prune drops timestamps that are a full window or more in the past. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.history) && now.Sub(l.history[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		l.history = append(l.history[:0], l.history[cut:]...)
	}
}

// InWindow reports how many admissions currently count against the ceiling.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return len(l.history)
}

// Ceiling returns the configured maximum admissions per window.
func (l *Limiter) Ceiling() int { return l.ceiling }
