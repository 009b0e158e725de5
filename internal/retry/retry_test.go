package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	got, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: rec.sleep},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("connection reset")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	rec := &sleepRecorder{}
	rejected := errors.New("signature rejected")
	calls := 0

	_, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: rec.sleep},
		func(ctx context.Context) (bool, error) {
			calls++
			return false, Permanent(rejected)
		})

	assert.Same(t, rejected, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoExhausted(t *testing.T) {
	rec := &sleepRecorder{}
	boom := errors.New("timeout")

	_, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Sleep: rec.sleep},
		func(ctx context.Context) (int, error) {
			return 0, boom
		})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.delays, 2)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Hour},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("flaky")
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
}
