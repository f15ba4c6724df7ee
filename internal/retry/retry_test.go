package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:     retries,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	cause := errors.New("bad request")
	err := Do(context.Background(), fastConfig(3), nil, func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, attempts)
}

func TestDo_CustomClassifier(t *testing.T) {
	attempts := 0
	cause := errors.New("never again")
	err := Do(context.Background(), fastConfig(3), func(err error) bool { return !errors.Is(err, cause) },
		func(ctx context.Context) error {
			attempts++
			return cause
		})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, attempts)
}

func TestDo_Exhausted(t *testing.T) {
	attempts := 0
	cause := errors.New("still failing")
	err := Do(context.Background(), fastConfig(2), nil, func(ctx context.Context) error {
		attempts++
		return cause
	})

	var rerr *RetryableError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, rerr.Retries)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, Multiplier: 2}

	attempts := 0
	err := Do(ctx, cfg, nil, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("temporary")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("x")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(Permanent(errors.New("x"))))
	assert.Nil(t, Permanent(nil))
}

func TestJitter(t *testing.T) {
	assert.Zero(t, jitter(time.Second, 0))
	for i := 0; i < 100; i++ {
		j := jitter(time.Second, 0.2)
		assert.LessOrEqual(t, j, 200*time.Millisecond)
		assert.GreaterOrEqual(t, j, -200*time.Millisecond)
	}
}
