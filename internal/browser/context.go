package browser

import "context"

// CombineContext derives a context from base that is also cancelled when secondary is done.
// Values (notably the chromedp target) come from base; secondary's deadline is carried over
// so elapsed deadlines still report context.DeadlineExceeded.
func CombineContext(base, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(base)

	cancelDeadline := context.CancelFunc(func() {})
	if deadline, ok := secondary.Deadline(); ok {
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
	}

	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})

	return ctx, func() {
		stop()
		cancelDeadline()
		cancel(context.Canceled)
	}
}
