package client

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is an explicit value object describing how transient failures
// are retried. Rate limiting (429) is handled outside the policy: a 429
// sleeps for the server-instructed duration and never consumes a retry.
type RetryPolicy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Factor            float64
	JitterFraction    float64
	RetryAfterDefault time.Duration
}

// DefaultRetryPolicy matches the production configuration: 3 retries,
// exponential backoff from 1s capped at 30s, ±25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		Factor:            2.0,
		JitterFraction:    0.25,
		RetryAfterDefault: 5 * time.Second,
	}
}

// Backoff computes the delay before retry number attempt (0-based):
// min(maxDelay, base * factor^attempt) scaled by (1 ± jitterFraction).
// jitterSource must return a value in [0,1); pass rand.Float64 outside
// tests.
func (p RetryPolicy) Backoff(attempt int, jitterSource func() float64) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if capped := float64(p.MaxDelay); delay > capped {
		delay = capped
	}
	if p.JitterFraction > 0 {
		if jitterSource == nil {
			jitterSource = rand.Float64
		}
		// Spread across (1-j, 1+j).
		scale := 1 + p.JitterFraction*(2*jitterSource()-1)
		delay *= scale
	}
	return time.Duration(delay)
}

// TransientError covers timeouts, connection resets and 5xx responses.
// Retried with backoff until the policy budget runs out, then the last one
// is surfaced.
type TransientError struct {
	StatusCode int // 0 for transport-level failures
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError covers 4xx responses other than 429. Never retried.
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent HTTP %d: %s", e.StatusCode, e.Body)
}
