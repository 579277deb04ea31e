package generator

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// RetryNotice tells the caller a retryable failure happened and how long
// the generator waits before the next call.
type RetryNotice struct {
	Attempt    int // 1-based number of the retry about to happen
	MaxRetries int
	Delay      time.Duration
	Reason     string
}

// Backoff computes Base * Factor^attempt plus uniform jitter in [0, MaxJitter).
type Backoff struct {
	Base      time.Duration
	Factor    float64
	MaxJitter time.Duration
}

// DefaultBackoff is 1.8^n × 1500ms + [0, 1s).
func DefaultBackoff() Backoff {
	return Backoff{Base: 1500 * time.Millisecond, Factor: 1.8, MaxJitter: time.Second}
}

// Delay returns the wait after the 0-indexed attempt failed. rnd must return
// values in [0, 1).
func (b Backoff) Delay(attempt int, rnd func() float64) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if b.MaxJitter > 0 && rnd != nil {
		d += rnd() * float64(b.MaxJitter)
	}
	return time.Duration(d)
}

type outcome int

const (
	attemptOK outcome = iota
	attemptRetry
	attemptFatal
)

func (o outcome) String() string {
	switch o {
	case attemptOK:
		return "ok"
	case attemptRetry:
		return "retry"
	}
	return "fatal"
}

var (
	retryableStatuses = []string{"UNAVAILABLE", "RESOURCE_EXHAUSTED"}
	retryableCodes    = []int{503, 429}
	quotaMarkers      = []string{"resource_exhausted", "429"}
	overloadMarkers   = []string{"overloaded", "unavailable", "503"}
)

// IsRetryable reports whether err is a transient service condition.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		for _, s := range retryableStatuses {
			if strings.EqualFold(svc.Status, s) {
				return true
			}
		}
		for _, c := range retryableCodes {
			if svc.Code == c {
				return true
			}
		}
	}
	return isQuota(err) || isOverload(err)
}

func isQuota(err error) bool {
	var svc *ServiceError
	if errors.As(err, &svc) && (svc.Code == 429 || strings.EqualFold(svc.Status, "RESOURCE_EXHAUSTED")) {
		return true
	}
	return containsAny(err, quotaMarkers)
}

func isOverload(err error) bool {
	var svc *ServiceError
	if errors.As(err, &svc) && (svc.Code == 503 || strings.EqualFold(svc.Status, "UNAVAILABLE")) {
		return true
	}
	return containsAny(err, overloadMarkers)
}

func containsAny(err error, markers []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
