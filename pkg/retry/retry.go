// Package retry wraps upstream HTTP calls with a transport-level retry
// policy and a process-local circuit breaker.
//
// The policy is two-tier by design: only failures where no HTTP response was
// received (connect errors, timeouts) are retried here. Any received
// response, including 4xx/5xx, is returned to the caller for status-based
// handling.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy controls retries for a single upstream request.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialInterval is the first backoff delay; subsequent delays grow
	// exponentially up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy matches the reference parameterization: three attempts with
// 1s, 2s, 4s exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Do runs request until it yields an HTTP response, a non-transport error,
// or the attempt budget is exhausted.
func (policy Policy) Do(ctx context.Context, request func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	exponential := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		exponential.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		exponential.MaxInterval = policy.MaxInterval
	}

	operation := func() (*http.Response, error) {
		response, err := request(ctx)
		if err == nil {
			return response, nil
		}
		if !IsTransportError(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(exponential),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
}

// IsTransportError reports whether err is a transport-level failure (no HTTP
// response was received) that is worth retrying. Context cancellation is
// never retryable.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// url.Error wraps everything http.Client.Do can fail with before a
	// response exists: dial errors, TLS failures, broken connections.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
