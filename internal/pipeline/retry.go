package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mbreslin/voicesync/internal/extract"
	"github.com/mbreslin/voicesync/pkg/models"
)

// retrier wraps extractor calls in an exponential backoff that fires only
// on rate limits. Any other extraction error aborts immediately. The timer
// is injectable so tests can observe the waits without sleeping; a nil
// timer uses the real clock.
type retrier struct {
	maxAttempts int
	timer       backoff.Timer
	logger      *slog.Logger
}

func (r *retrier) extract(ctx context.Context, ex extract.Extractor, transcript string, mappings []*models.SchemaMapping) (extract.Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	var result extract.Result
	attempt := 0
	operation := func() error {
		attempt++
		res, err := ex.Extract(ctx, transcript, mappings)
		if err == nil {
			result = res
			return nil
		}
		if !errors.Is(err, extract.ErrRateLimited) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("extraction rate limited, backing off",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxAttempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, r.timer); err != nil {
		if errors.Is(err, extract.ErrRateLimited) {
			return extract.Result{}, fmt.Errorf("extraction still rate limited after %d attempts: %w", attempt, err)
		}
		return extract.Result{}, err
	}
	return result, nil
}
