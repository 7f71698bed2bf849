package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordSleep captures requested delays without waiting.
func recordSleep(delays *[]time.Duration) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	})
}

func TestValue_SucceedsAfterFailures(t *testing.T) {
	for k := 0; k < DefaultMaxAttempts; k++ {
		t.Run(fmt.Sprintf("fails %d times", k), func(t *testing.T) {
			calls := 0
			var delays []time.Duration
			got, err := Value(context.Background(), func(context.Context) (string, error) {
				calls++
				if calls <= k {
					return "", errors.New("transient")
				}
				return "ok", nil
			}, recordSleep(&delays))

			require.NoError(t, err)
			assert.Equal(t, "ok", got)
			assert.Equal(t, k+1, calls)
			assert.Len(t, delays, k)
		})
	}
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	var delays []time.Duration
	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}

	err := Do(context.Background(), func(context.Context) error {
		e := errs[calls]
		calls++
		return e
	}, recordSleep(&delays))

	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Same(t, errs[2], err, "the final attempt's error is surfaced as-is")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays, "no delay after the final attempt")
}

func TestDo_ExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	_ = Do(context.Background(), func(context.Context) error {
		return errors.New("always")
	}, WithMaxAttempts(5), WithBaseDelay(100*time.Millisecond), recordSleep(&delays))

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}, delays)
}

func TestDo_LogsEachNonFinalFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var delays []time.Duration

	_ = Do(context.Background(), func(context.Context) error {
		return errors.New("boom")
	}, WithLogger(zap.New(core)), WithName("fetch"), recordSleep(&delays))

	entries := logs.FilterMessage("Attempt failed, retrying").All()
	require.Len(t, entries, DefaultMaxAttempts-1)
	assert.Equal(t, "fetch", entries[0].ContextMap()["operation"])
	assert.EqualValues(t, 1, entries[0].ContextMap()["attempt"])
}

func TestDo_NonPositiveAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("nope")
	}, WithMaxAttempts(0))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, WithBaseDelay(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "transient")
	assert.Equal(t, 1, calls)
}

func TestDo_DelayIsCapped(t *testing.T) {
	var delays []time.Duration
	_ = Do(context.Background(), func(context.Context) error {
		return errors.New("always")
	}, WithMaxAttempts(80), WithBaseDelay(time.Second), WithMaxDelay(time.Minute), recordSleep(&delays))

	require.Len(t, delays, 79)
	for i, d := range delays {
		assert.Positive(t, d, "delay %d", i)
		assert.LessOrEqual(t, d, time.Minute, "delay %d", i)
	}
	assert.Equal(t, time.Minute, delays[len(delays)-1])
}

func TestDo_DefaultCapHoldsForManyAttempts(t *testing.T) {
	var delays []time.Duration
	_ = Do(context.Background(), func(context.Context) error {
		return errors.New("always")
	}, WithMaxAttempts(100), recordSleep(&delays))

	require.Len(t, delays, 99)
	assert.Equal(t, DefaultMaxDelay, delays[len(delays)-1])
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("rejected")
	var delays []time.Duration

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(cause)
	}, recordSleep(&delays))

	assert.Same(t, cause, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestValue_RealTimer(t *testing.T) {
	calls := 0
	start := time.Now()
	got, err := Value(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, WithBaseDelay(5*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}
