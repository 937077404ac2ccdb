// Package persistence contains helpers shared by store implementations.
package persistence

import (
	"context"
	"time"

	"cdr.dev/slog/v3"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/xerrors"
)

// Connect calls dial until it succeeds, the budget elapses or ctx is
// cancelled, backing off exponentially between attempts. The last dial error
// is returned when the budget runs out.
func Connect[T any](ctx context.Context, logger slog.Logger, budget time.Duration, dial func(context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 250 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = budget

	attempt := 0
	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return dial(ctx)
	}, backoff.WithContext(eb, ctx), func(err error, wait time.Duration) {
		logger.Warn(ctx, "store connection failed, retrying",
			slog.F("attempt", attempt),
			slog.F("retry_in", wait.String()),
			slog.Error(err),
		)
	})
	if err != nil {
		var zero T
		return zero, xerrors.Errorf("connect after %d attempts: %w", attempt, err)
	}
	return result, nil
}
