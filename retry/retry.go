package retry

import (
	"context"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// RetryIf reports whether err is worth another attempt. It is consulted
	// before RetryCodes.
	RetryIf func(error) bool

	// RetryCodes lists gRPC status codes that are retryable, for fetchers
	// that call gRPC upstreams.
	RetryCodes []codes.Code
}

// Enabled reports whether cfg allows more than one attempt.
func (c Config) Enabled() bool {
	return c.MaxAttempts > 1
}

func (c Config) retryable(err error) bool {
	if c.RetryIf != nil && c.RetryIf(err) {
		return true
	}
	if len(c.RetryCodes) == 0 {
		return false
	}
	st, ok := status.FromError(err)
	return ok && slices.Contains(c.RetryCodes, st.Code())
}

// Do calls fn up to cfg.MaxAttempts times, retrying only errors accepted by
// cfg.RetryIf or carrying a gRPC code from cfg.RetryCodes. The last error
// is returned unchanged so callers can still match it with errors.Is.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if i == attempts-1 || !cfg.retryable(err) {
			return zero, err
		}

		timer := time.NewTimer(backoff(cfg, i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, nil
}
