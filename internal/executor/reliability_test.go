package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/proofkit-gate/internal/domain"
)

// scriptedExecutor падает на первых failures вызовах, дальше успешен.
type scriptedExecutor struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (s *scriptedExecutor) Apply(_ context.Context, _ domain.MutationRecord) error {
	if s.calls.Add(1) <= s.failures {
		return s.err
	}
	return nil
}

func TestReliabilityWrapper_RetriesTransientFailure(t *testing.T) {
	next := &scriptedExecutor{failures: 2, err: &ThrottleError{RetryAfter: time.Millisecond}}
	w := NewReliabilityWrapper(next)

	err := w.Apply(context.Background(), domain.NewBudgetChange("Campaign-A", 15, 10))
	require.NoError(t, err)
	assert.Equal(t, int32(3), next.calls.Load(), "two failures then success within one Apply")
}

func TestReliabilityWrapper_HonorsThrottleRetryAfter(t *testing.T) {
	// Два throttle подряд: задержки между попытками должны прийти из
	// Retry-After платформы, а не из экспоненциального бэкоффа
	retryAfter := 30 * time.Millisecond
	next := &scriptedExecutor{failures: 2, err: &ThrottleError{RetryAfter: retryAfter}}
	w := NewReliabilityWrapper(next)

	start := time.Now()
	err := w.Apply(context.Background(), domain.NewMasterNegativeAdd("proofkit_master", "free stuff"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*retryAfter)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestReliabilityWrapper_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &scriptedExecutor{failures: 1 << 30, err: &ThrottleError{RetryAfter: time.Millisecond}}
	w := NewReliabilityWrapper(next)
	m := domain.NewBudgetChange("Campaign-A", 15, 10)

	// Каждый Apply — одна неудача для предохранителя (ретраи внутри)
	for i := 0; i < 6; i++ {
		require.Error(t, w.Apply(context.Background(), m))
	}
	before := next.calls.Load()

	err := w.Apply(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, next.calls.Load(), "open breaker must not reach the platform")
}

func TestReliabilityWrapper_ContextCancelStopsRetries(t *testing.T) {
	next := &scriptedExecutor{failures: 1 << 30, err: errors.New("flaky platform")}
	w := NewReliabilityWrapper(next)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Apply(ctx, domain.NewBudgetChange("Campaign-A", 15, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
