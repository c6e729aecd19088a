package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrapFormatsContext(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Client", "FetchData", "daemon request")

	require.Error(t, err)
	assert.Equal(t, "Client.FetchData: daemon request failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "C", "M", "a"))
	assert.Nil(t, WrapTransient(nil, "C", "M", "a"))
	assert.Nil(t, WrapInvalid(nil, "C", "M", "a"))
	assert.Nil(t, WrapFatal(nil, "C", "M", "a"))
}

func TestClassifiedWrappersCarryClass(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{name: "transient", err: WrapTransient(base, "C", "M", "a"), class: ErrorTransient},
		{name: "invalid", err: WrapInvalid(base, "C", "M", "a"), class: ErrorInvalid},
		{name: "fatal", err: WrapFatal(base, "C", "M", "a"), class: ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *ClassifiedError
			require.ErrorAs(t, tt.err, &ce)
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "C", ce.Component)
			assert.Equal(t, "M", ce.Operation)
			assert.ErrorIs(t, tt.err, base)
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(ErrNoConnection))
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(ErrFetchFailed))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: connection refused")))
	assert.True(t, IsTransient(fmt.Errorf("service temporarily unavailable")))
	assert.False(t, IsTransient(fmt.Errorf("parse failure")))

	// A classification wrapper wins over string matching
	assert.False(t, IsTransient(WrapInvalid(fmt.Errorf("timeout"), "C", "M", "a")))
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrDuplicateComponent))
	assert.True(t, IsInvalid(ErrUnknownComponent))
	assert.True(t, IsInvalid(ErrWatcherFired))
	assert.True(t, IsInvalid(ErrInvalidPayload))
	assert.True(t, IsInvalid(fmt.Errorf("wrapped: %w", ErrInvalidComponent)))
	assert.False(t, IsInvalid(ErrNoConnection))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrMaxRetriesExceeded))
	assert.True(t, IsFatal(WrapFatal(fmt.Errorf("boom"), "C", "M", "a")))
	assert.False(t, IsFatal(ErrFetchFailed))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrDuplicateComponent))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("anything else")))
}

func TestShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.False(t, cfg.ShouldRetry(nil, 0))
	assert.True(t, cfg.ShouldRetry(ErrNoConnection, 0))
	assert.False(t, cfg.ShouldRetry(ErrNoConnection, cfg.MaxRetries), "attempts exhausted")
	assert.False(t, cfg.ShouldRetry(ErrInvalidConfig, 0), "fatal errors never retry")
}

func TestToRetryConfig(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}

	cfg := rc.ToRetryConfig()
	assert.Equal(t, 4, cfg.MaxAttempts, "retries convert to total attempts")
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}
