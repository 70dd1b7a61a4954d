package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastPolicy(n int) Policy {
	return Policy{MaxAttempts: n, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 5*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(10))

	uncapped := Policy{BaseDelay: time.Second}
	assert.Equal(t, 8*time.Second, uncapped.Delay(3))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	var retried []int
	v, err := Do(context.Background(), fastPolicy(3), func(attempt int, _ time.Duration, _ error) {
		retried = append(retried, attempt)
	}, func(_ context.Context, attempt int) (string, error) {
		atomic.AddInt32(&calls, 1)
		if attempt < 2 {
			return "", errFlaky
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_Exhausted(t *testing.T) {
	var calls int32
	_, err := Do(context.Background(), fastPolicy(3), nil, func(context.Context, int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errFlaky
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, int32(3), calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	var calls int32
	_, err := Do(context.Background(), fastPolicy(5), nil, func(context.Context, int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, Permanent(errFlaky)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errFlaky)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, int32(1), calls)
}

func TestDo_ParentCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, nil, func(context.Context, int) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, errFlaky
		})
		done <- err
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDo_PerAttemptTimeoutIsRetried(t *testing.T) {
	p := fastPolicy(2)
	p.Timeout = 10 * time.Millisecond

	v, err := Do(context.Background(), p, nil, func(ctx context.Context, attempt int) (int, error) {
		if attempt == 0 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
