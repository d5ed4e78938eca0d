package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultRetryAttempts = 3
	retryBackoffBase     = 500 * time.Millisecond
	retryBackoffMax      = 30 * time.Second
	retryJitter          = 50 * time.Millisecond
)

// retryClient decorates a Client with bounded exponential backoff for
// transient provider failures. Request timeouts are applied per attempt
// budget, not per retry.
type retryClient struct {
	inner    Client
	attempts uint64
	timeout  time.Duration
}

// WithRetry wraps a client so transient failures (rate limits, overloads,
// network drops) are retried up to attempts times.
func WithRetry(inner Client, attempts int, timeout time.Duration) Client {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	return &retryClient{inner: inner, attempts: uint64(attempts), timeout: timeout}
}

func (c *retryClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	backoff := retry.NewExponential(retryBackoffBase)
	backoff = retry.WithMaxDuration(retryBackoffMax, backoff)
	backoff = retry.WithMaxRetries(c.attempts, retry.WithJitter(retryJitter, backoff))

	var response *Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		response, callErr = c.inner.GenerateContent(ctx, req)
		if callErr != nil {
			if isTransient(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (c *retryClient) Close() error {
	return c.inner.Close()
}

// transientMarkers are provider error fragments that indicate a retry may
// succeed.
var transientMarkers = []string{
	"rate limit", "rate-limit", "too many requests", "429",
	"overloaded", "overloaded_error", "capacity",
	"timeout", "deadline exceeded", "connection reset", "connection refused",
	"500", "502", "503", "504",
	"internal server error", "bad gateway", "service unavailable",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
