package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toolmesh/internal/domain"
)

func newTestExecutor(policy Policy) (*Executor, *[]time.Duration) {
	exec := NewExecutor(policy, Options{})
	var delays []time.Duration
	exec.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return exec, &delays
}

func TestExecutor_FirstSuccessReturnsImmediately(t *testing.T) {
	exec, delays := newTestExecutor(DefaultPolicy())

	calls := 0
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, *delays)
}

func TestExecutor_ExhaustionSurfacesLastError(t *testing.T) {
	exec, delays := newTestExecutor(Policy{MaxAttempts: 3, BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute})

	calls := 0
	errs := []error{
		domain.Transient(domain.CodeUnavailable, "op", errors.New("first")),
		domain.Transient(domain.CodeUnavailable, "op", errors.New("second")),
		domain.Transient(domain.CodeUnavailable, "op", errors.New("third")),
	}
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		err := errs[calls]
		calls++
		return err
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "third")
	require.Equal(t, 3, calls)
	// Two backoffs between three attempts.
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestExecutor_SuccessOnSecondAttempt(t *testing.T) {
	exec, delays := newTestExecutor(Policy{MaxAttempts: 3, BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute})

	calls := 0
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return domain.Transient(domain.CodeUnavailable, "op", errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, []time.Duration{time.Second}, *delays)
}

func TestExecutor_PermanentErrorShortCircuits(t *testing.T) {
	exec, delays := newTestExecutor(DefaultPolicy())

	calls := 0
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return domain.ErrToolNotFound
	})
	require.ErrorIs(t, err, domain.ErrToolNotFound)
	require.Equal(t, 1, calls)
	require.Empty(t, *delays)
}

func TestExecutor_ContextCanceledBeforeFirstAttempt(t *testing.T) {
	exec, _ := newTestExecutor(DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := exec.Do(ctx, "op", func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestPolicy_DelayCapsAtMax(t *testing.T) {
	policy := Policy{MaxAttempts: 10, BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	require.Equal(t, time.Second, policy.Delay(1))
	require.Equal(t, 2*time.Second, policy.Delay(2))
	require.Equal(t, 4*time.Second, policy.Delay(3))
	require.Equal(t, 5*time.Second, policy.Delay(4))
	require.Equal(t, 5*time.Second, policy.Delay(8))
}

func TestCall_ReturnsValue(t *testing.T) {
	exec, _ := newTestExecutor(DefaultPolicy())

	calls := 0
	value, err := Call(context.Background(), exec, "op", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", domain.Transient(domain.CodeUnavailable, "op", errors.New("flaky"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, 2, calls)
}
