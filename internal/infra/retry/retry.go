// Package retry wraps fallible operations with bounded exponential
// backoff. The executor knows nothing about tool semantics; it only
// decides whether and when to attempt again.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DefaultPolicy returns the standard 3-attempt, doubling, 60s-capped policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   domain.DefaultRetryMaxAttempts,
		BaseDelay:     domain.DefaultRetryBaseSeconds * time.Second,
		BackoffFactor: domain.DefaultRetryBackoffFactor,
		MaxDelay:      domain.DefaultRetryMaxSeconds * time.Second,
	}
}

func (p Policy) normalized() Policy {
	out := p
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = domain.DefaultRetryBaseSeconds * time.Second
	}
	if out.BackoffFactor < 1 {
		out.BackoffFactor = domain.DefaultRetryBackoffFactor
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = domain.DefaultRetryMaxSeconds * time.Second
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = out.BaseDelay
	}
	return out
}

// Delay returns the backoff before retry k (k >= 1, 0-indexed retries):
// min(MaxDelay, BaseDelay * BackoffFactor^(k-1)).
func (p Policy) Delay(retry int) time.Duration {
	norm := p.normalized()
	if retry < 1 {
		retry = 1
	}
	delay := norm.BaseDelay
	for i := 1; i < retry; i++ {
		delay = time.Duration(float64(delay) * norm.BackoffFactor)
		if delay >= norm.MaxDelay {
			return norm.MaxDelay
		}
	}
	if delay > norm.MaxDelay {
		return norm.MaxDelay
	}
	return delay
}

// Executor runs operations under a Policy.
type Executor struct {
	policy  Policy
	logger  *zap.Logger
	metrics domain.Metrics
	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Options configures an Executor.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
}

// NewExecutor constructs an Executor with the given policy.
func NewExecutor(policy Policy, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Executor{
		policy:  policy.normalized(),
		logger:  logger.Named("retry"),
		metrics: metrics,
		sleep:   sleepCtx,
	}
}

// Do runs fn up to MaxAttempts times. The first success returns
// immediately. Permanent errors short-circuit. On exhaustion the last
// error is returned, never swallowed. The backoff suspends only the
// calling goroutine and honors ctx cancellation.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !domain.IsRetryable(last) {
			return last
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		e.metrics.ObserveRetry(op)
		e.logger.Debug("attempt failed, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(last),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return last
		}
	}
	return last
}

// Call is Do for operations returning a value.
func Call[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		out = value
		return nil
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
