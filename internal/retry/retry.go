// Package retry runs network reads with bounded attempts, per-attempt
// timeouts and exponential backoff, plus an unbounded fixed-interval poll.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultAttempts is the number of tries before giving up.
	DefaultAttempts = 8

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 8 * time.Second

	// DefaultBackoff is the sleep after the first failed attempt. It doubles
	// after every subsequent failure.
	DefaultBackoff = 200 * time.Millisecond
)

// ErrExhausted matches any *ExhaustedError.
var ErrExhausted = errors.New("retries exhausted")

// Policy controls how Do retries an operation.
type Policy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration

	// OnRetry, if set, is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns the policy used for every chain read.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: DefaultAttempts,
		Timeout:  DefaultTimeout,
		Backoff:  DefaultBackoff,
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%d attempts failed: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately without sleeping.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, or the policy's
// attempts run out. Each attempt gets its own timeout derived from ctx.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := runAttempt(ctx, p.Timeout, op)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
		wait *= 2
	}

	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(actx)
}

// Until polls op every interval until it reports done or returns an error.
// There is no attempt limit: it is meant for waiting on chain state that is
// expected to advance eventually, not for recovering from faults.
func Until[T any](ctx context.Context, interval time.Duration, op func(ctx context.Context) (T, bool, error)) (T, error) {
	for {
		v, done, err := op(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		if done {
			return v, nil
		}
		if err := sleep(ctx, interval); err != nil {
			var zero T
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
