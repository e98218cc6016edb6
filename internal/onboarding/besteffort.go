package onboarding

import (
	"context"
	"log/slog"
	"time"
)

// bestEffort runs fn under its own timeout. Any error, including the timeout,
// is logged at Warn and the fallback is returned instead.
func bestEffort[T any](ctx context.Context, logger *slog.Logger, hook string, timeout time.Duration, fallback T, fn func(context.Context) (T, error)) T {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := fn(ctx)
	if err != nil {
		logger.WarnContext(ctx, "best-effort hook failed, using fallback",
			slog.String("hook", hook),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return fallback
	}
	return v
}
