// Package retry re-runs a failing operation with capped exponential
// backoff and jitter. It wraps single model calls and transient HTTP
// dial failures; domain-level failures that callers encode as data never
// reach it.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures [Do]. The zero value makes a single attempt.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure. Each later wait
	// doubles, up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is the upper bound of a uniform random delay added to
	// every wait.
	Jitter time.Duration

	// Retryable reports whether err is worth another attempt. Nil
	// retries everything except context cancellation and errors
	// wrapped with [Permanent].
	Retryable func(error) bool

	// OnRetry, if set, is called before each wait with the 1-based
	// number of the attempt that failed.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Default mirrors the model-call policy: three attempts, 500ms base,
// 4s cap and up to 100ms of jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		Jitter:      100 * time.Millisecond,
	}
}

// Backoff returns the jitter-free wait after the failure of the given
// 0-based attempt: BaseDelay * 2^attempt, capped at MaxDelay. The
// sequence is non-decreasing.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		return 0
	}
	for i := 0; i < attempt; i++ {
		if (p.MaxDelay > 0 && d >= p.MaxDelay) || d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	r := rand.Float64
	if p.rand != nil {
		r = p.rand
	}
	return time.Duration(r() * float64(p.Jitter))
}

func (p Policy) retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// Do calls op until it succeeds, the attempts run out, or a failure is
// not retryable. The last failure is returned unmodified (errors marked
// with [Permanent] are unwrapped first). If ctx ends during a wait, the
// context error is returned.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for i := 0; ; i++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if i == attempts-1 || !p.retryable(err) {
			var perm *permanentError
			if errors.As(err, &perm) {
				return zero, perm.err
			}
			return zero, err
		}

		delay := p.Backoff(i) + p.jitter()
		if p.OnRetry != nil {
			p.OnRetry(i+1, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
