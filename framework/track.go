package framework

import (
	"context"

	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/tracker"
)

// Track creates a closed tracker over the framework's registry that reports
// into the framework's logs and metrics. Extra options apply last.
func Track[T any](f *Framework, sel tracker.Selector, opts ...tracker.Option) *tracker.Tracker[T] {
	base := []tracker.Option{
		tracker.WithLogger(f.log.WithComponent("tracker")),
		tracker.WithMetrics(f.trackerMetrics),
	}
	return tracker.New[T](f.reg, sel, append(base, opts...)...)
}

// Lookup waits for the best service sel matches, bounded by ctx and the
// configured default wait timeout. It reports false if none appears in time.
func Lookup[T any](ctx context.Context, f *Framework, sel tracker.Selector) (T, bool) {
	if d := f.cfg.Tracker.DefaultWaitTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	t := Track[T](f, sel, tracker.WithName("lookup:"+sel.String()))
	t.Open()
	defer t.Close()

	svc, ok := t.WaitForServiceContext(ctx)
	if !ok {
		f.log.Debug("lookup found nothing", logger.Fields(logger.FieldFilter, sel.String()))
	}
	return svc, ok
}
