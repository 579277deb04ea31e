package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DelayFormula(t *testing.T) {
	b := DefaultBackoff()
	for n := 0; n <= 8; n++ {
		base := time.Duration(1500 * float64(time.Millisecond) * math.Pow(1.8, float64(n)))

		lo := b.Delay(n, func() float64 { return 0 })
		hi := b.Delay(n, func() float64 { return 0.999999 })

		assert.Equal(t, base, lo, "attempt %d without jitter", n)
		assert.GreaterOrEqual(t, hi, base)
		assert.Less(t, hi, base+time.Second, "jitter stays below 1s at attempt %d", n)
	}
}

func TestBackoff_IncreasesAcrossAttempts(t *testing.T) {
	b := DefaultBackoff()
	// even worst-case jitter cannot make attempt n+1 shorter than attempt n
	for n := 0; n < 8; n++ {
		worst := b.Delay(n, func() float64 { return 0.999999 })
		next := b.Delay(n+1, func() float64 { return 0 })
		assert.Greater(t, next, worst, "attempt %d", n)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429 code", &ServiceError{Code: 429, Message: "slow down"}, true},
		{"503 code", &ServiceError{Code: 503}, true},
		{"RESOURCE_EXHAUSTED status", &ServiceError{Status: "RESOURCE_EXHAUSTED"}, true},
		{"UNAVAILABLE status", &ServiceError{Status: "UNAVAILABLE"}, true},
		{"overloaded message", errors.New("The model is Overloaded. Please try again later."), true},
		{"wrapped 429 text", fmt.Errorf("call failed: %w", errors.New("HTTP 429 Too Many Requests")), true},
		{"resource_exhausted text", errors.New("rpc error: resource_exhausted"), true},
		{"400 invalid argument", &ServiceError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad prompt"}, false},
		{"permission denied", &ServiceError{Code: 403, Status: "PERMISSION_DENIED", Message: "API key not valid"}, false},
		{"empty response", ErrEmptyResponse, false},
		{"context canceled", context.Canceled, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestSleepContext_HonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
