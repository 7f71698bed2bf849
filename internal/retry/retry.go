// Package retry runs fallible operations a bounded number of times with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	// DefaultMaxDelay caps a single pause however many attempts are configured.
	DefaultMaxDelay = 5 * time.Minute
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger
	name        string
	sleep       SleepFunc
}

// Option configures a retry run.
type Option func(*options)

// WithMaxAttempts sets the total number of invocations, including the first.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithBaseDelay sets the delay before the second attempt; each later delay doubles.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) { o.baseDelay = d }
}

// WithMaxDelay caps the doubling.
func WithMaxDelay(d time.Duration) Option {
	return func(o *options) { o.maxDelay = d }
}

// WithLogger sets the logger failed attempts are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithName labels log entries with the operation being retried.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSleep replaces the backoff timer. Tests only.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) { o.sleep = fn }
}

func newOptions(opts []Option) options {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = 1
	}
	if o.baseDelay < 0 {
		o.baseDelay = 0
	}
	if o.maxDelay < o.baseDelay {
		o.maxDelay = o.baseDelay
	}
	return o
}

// policy builds the backoff schedule: base, 2·base, 4·base ... capped at maxDelay, with no
// jitter and no elapsed-time limit, stopping after maxAttempts-1 pauses.
func (o options) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(o.baseDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(o.maxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.maxAttempts-1)), ctx)
}

// sleepTimer adapts a SleepFunc to backoff.Timer. Start blocks for the pause and then
// fires, so the retry loop sees the timer already expired.
type sleepTimer struct {
	ctx   context.Context
	sleep SleepFunc
	c     chan time.Time
}

func newSleepTimer(ctx context.Context, fn SleepFunc) *sleepTimer {
	return &sleepTimer{ctx: ctx, sleep: fn, c: make(chan time.Time, 1)}
}

func (t *sleepTimer) Start(d time.Duration) {
	if err := t.sleep(t.ctx, d); err != nil {
		// Leave the channel empty; the loop is woken by ctx instead.
		return
	}
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }

// Permanent marks err as not worth retrying. Do and Value return the wrapped error at once.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do invokes op until it succeeds or the attempts are exhausted. Every error is treated
// as retryable unless wrapped with Permanent. On exhaustion the last attempt's error is
// returned unchanged; there is no pause after the final attempt.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Value(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := newOptions(opts)

	var (
		attempt int
		lastErr error
	)
	operation := func() (T, error) {
		attempt++
		result, err := op(ctx)
		if err != nil {
			lastErr = err
		}
		return result, err
	}
	notify := func(err error, delay time.Duration) {
		o.logger.Warn("Attempt failed, retrying",
			zap.String("operation", o.name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	var timer backoff.Timer
	if o.sleep != nil {
		timer = newSleepTimer(ctx, o.sleep)
	}

	result, err := backoff.RetryNotifyWithTimerAndData[T](operation, o.policy(ctx), notify, timer)
	if err == nil {
		return result, nil
	}
	var zero T
	// The policy reports cancellation as the bare context error; keep the cause visible.
	if cerr := ctx.Err(); cerr != nil && err == cerr && lastErr != nil && lastErr != cerr {
		return zero, fmt.Errorf("retry aborted after attempt %d: %w (last error: %v)", attempt, cerr, lastErr)
	}
	return zero, err
}
