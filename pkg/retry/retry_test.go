package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(attempts int) Policy {
	return Policy{Attempts: attempts, Base: time.Millisecond, Cap: 2 * time.Millisecond}
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	var waits []int
	p := fast(5)
	p.OnRetry = func(attempt int, err error, _ time.Duration) {
		assert.Same(t, errFlaky, err, "mark is removed before OnRetry")
		waits = append(waits, attempt)
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, waits)
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errFlaky)
	})

	assert.Same(t, errFlaky, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	p := fast(5)
	p.RetryAll = true

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestDo_UnmarkedErrors(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls, "not retried by default")

	p := fast(3)
	p.RetryAll = true
	calls = 0
	err = p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_WrappedMarkKeepsContext(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("detect: %w", Retryable(errFlaky))
	})

	assert.Equal(t, 3, calls)
	assert.EqualError(t, err, "detect: flaky")
	assert.ErrorIs(t, err, errFlaky)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, Base: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return Retryable(errFlaky)
	})

	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errFlaky)
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Cap: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.backoff(3))
	assert.Equal(t, time.Second, p.backoff(5))
	assert.Equal(t, time.Second, p.backoff(80), "shift overflow is capped")

	p.Jitter = 0.2
	for i := 0; i < 20; i++ {
		d := p.backoff(2)
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.LessOrEqual(t, d, 240*time.Millisecond)
	}
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 3, FaceService().Attempts)
	assert.False(t, FaceService().RetryAll)
	assert.Equal(t, 4, Transcription().Attempts)
	assert.True(t, Database().RetryAll)
}
