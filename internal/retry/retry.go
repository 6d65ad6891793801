// Package retry wraps network operations in bounded retries with exponential
// backoff. The caller decides what to do after the final failure; in this
// service that means queueing the payload as a pending submission.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 600 * time.Millisecond
)

// Permanent marks an error that must not be retried (validation, 4xx).
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }

func (e *Permanent) Unwrap() error { return e.Err }

// MarkPermanent wraps err so Do returns it without further attempts.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// IsPermanent reports whether err, as returned by Do, must not be retried
// later either. Such payloads are dropped instead of queued.
func IsPermanent(err error) bool {
	var perm *Permanent
	return errors.As(err, &perm)
}

// Observer is notified about every failed attempt. Used for metrics.
type Observer func(op string, attempt int, err error)

// Retrier runs operations with backoff base*2^(attempt-1) between attempts.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Observe     Observer

	log zerolog.Logger
}

// New creates a Retrier. Non-positive values fall back to the defaults.
func New(maxAttempts int, baseDelay time.Duration, log zerolog.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay < 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		log:         log.With().Str("component", "retry").Logger(),
	}
}

// Delay returns the wait after the given 1-based failed attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return r.BaseDelay * time.Duration(1<<(attempt-1))
}

// Do invokes fn until it succeeds, returns a Permanent error, the context is
// done, or MaxAttempts is exhausted. A Permanent error is returned as is so
// callers can tell it apart with IsPermanent.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if r.Observe != nil {
			r.Observe(op, attempt, err)
		}

		if IsPermanent(err) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if attempt == r.MaxAttempts {
			r.log.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("Operation failed after all attempts")
			break
		}

		wait := r.Delay(attempt)
		r.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("retry_in", wait).Msg("Attempt failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
