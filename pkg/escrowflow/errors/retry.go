package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how long a proposer keeps chasing an escrow output
// that moved. Only transient errors are retried; in this package that is a
// StaleUTxOError.
type RetryConfig struct {
	// MaxAttempts counts the first attempt. Values below 1 mean one attempt.
	MaxAttempts int

	// InitialBackoff is the pause after the first failed attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the pause. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the pause after each further failure.
	// Values below 1 keep the pause constant.
	BackoffFactor float64

	// Jitter spreads each pause by up to this fraction either way (0.0-1.0),
	// so competing proposers do not retry in lockstep.
	Jitter float64

	// OnRetry is called before sleeping ahead of each retry. Attempt is the
	// number of the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetry suits a public network. A block is produced every 20 seconds
// on average, so a stale escrow output usually resolves within a couple of
// retries.
var DefaultRetry = RetryConfig{
	MaxAttempts:    4,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// AggressiveRetry retries more times with shorter backoff, for local ledgers
// where contention clears quickly.
var AggressiveRetry = RetryConfig{
	MaxAttempts:    6,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	BackoffFactor:  1.5,
	Jitter:         0.2,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

func (c RetryConfig) attempts() int {
	return max(c.MaxAttempts, 1)
}

// Delay returns the pause after failed attempt n (1-based), before jitter.
func (c RetryConfig) Delay(n int) time.Duration {
	factor := max(c.BackoffFactor, 1)
	d := float64(c.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= factor
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && time.Duration(d) > c.MaxBackoff {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

// RetryResult contains the result of a retry operation.
type RetryResult[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error, a *CategorizedError, if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent, pauses included.
	Duration time.Duration
}

// Retry runs fn until it succeeds, fails with an error that is not
// transient, runs out of attempts, or ctx ends.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	limit := cfg.attempts()
	fail := func(err error, attempts int, note string) RetryResult[T] {
		return RetryResult[T]{
			Err:      &CategorizedError{Err: err, Category: Categorize(err), Retries: attempts, Context: note},
			Attempts: attempts,
			Duration: time.Since(start),
		}
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(err, attempt-1, "context cancelled")
		}

		value, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{Value: value, Attempts: attempt, Duration: time.Since(start)}
		}
		if !IsRetryable(err) {
			return fail(err, attempt, "")
		}
		if attempt == limit {
			return fail(err, attempt, "max retries exceeded")
		}

		delay := jittered(cfg.Delay(attempt), cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fail(ctx.Err(), attempt, "context cancelled during backoff")
		case <-timer.C:
		}
	}
}

// jittered spreads base by up to jitter of itself either way.
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	spread := float64(base) * min(jitter, 1) * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + spread)
}
