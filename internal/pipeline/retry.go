package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/akave-ai/gameevents/internal/dedup"
)

// RetryPolicy bounds the retries around a dedup claim. The wait after
// attempt n (1-based) is Multiplier * 2^n * Unit, clamped to [Min, Max].
type RetryPolicy struct {
	MaxAttempts int
	Unit        time.Duration
	Multiplier  float64
	Min         time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy makes three attempts with a 4s floor and 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Unit:        time.Second,
		Multiplier:  1,
		Min:         4 * time.Second,
		Max:         10 * time.Second,
	}
}

// Backoff returns the wait after the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := time.Duration(p.Multiplier * float64(p.Unit) * float64(uint64(1)<<uint(attempt)))
	if d < p.Min {
		d = p.Min
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryable reports whether err from a claim is worth another attempt.
func retryable(err error) bool {
	return !errors.Is(err, dedup.ErrAlreadyClaimed) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. onRetry is called before each wait.
func (p RetryPolicy) do(ctx context.Context, sleep sleepFunc, fn func() error, onRetry func(attempt int, wait time.Duration, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil || !retryable(err) || i == attempts {
			return err
		}
		wait := p.Backoff(i)
		if onRetry != nil {
			onRetry(i, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}
