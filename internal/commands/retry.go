package commands

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mealstack/mealstack/internal/eventstore"
)

// WithConflictRetry re-runs fn when it loses an optimistic-concurrency
// race. Only commands whose decide is a no-op on re-application (favorite,
// unfavorite, archive, swap-to-same) should be wrapped; domain errors and
// other failures are surfaced immediately.
func WithConflictRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(25*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
