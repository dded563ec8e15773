package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRetriesExhausted means every allowed attempt failed; the remote
	// state is unknown and the caller should skip or retry later.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrMalformedResponse means the body could not be decoded. Never retried.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnauthorized means the token was rejected. Never retried.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is an application-level error reported inside a response envelope
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error from %s: %s", e.Endpoint, e.Message)
}

// StatusError is a non-2xx HTTP response that is not a rate limit
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// ErrorClass drives the retry decision for a failed call
type ErrorClass int

const (
	// ClassTransient covers timeouts, transport errors and 5xx responses
	ClassTransient ErrorClass = iota + 1
	// ClassRateLimited is HTTP 429; it does not consume an attempt
	ClassRateLimited
	// ClassSemantic is an upstream error envelope other than not-found/no-results
	ClassSemantic
	// ClassFatal covers malformed bodies, auth failures and other 4xx
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassSemantic:
		return "semantic"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Policy is the single retry/backoff policy applied to every endpoint
type Policy struct {
	// MaxAttempts bounds transient and semantic failures per call
	MaxAttempts int
	// RetryDelay is the unit of the linear backoff
	RetryDelay time.Duration
	// MaxRateLimitRetries bounds consecutive 429 responses per call
	MaxRateLimitRetries int
}

// DefaultPolicy returns the production retry settings
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         3,
		RetryDelay:          5 * time.Second,
		MaxRateLimitRetries: 10,
	}
}

// attemptState tracks failures for one logical call
type attemptState struct {
	failures   int
	rateLimits int
}

// next records a failure of the given class and reports whether another
// attempt is allowed and how long to wait before it. retryAfter is the
// server-provided delay for rate limits, or zero when absent.
func (p Policy) next(class ErrorClass, st *attemptState, retryAfter time.Duration) (time.Duration, bool) {
	switch class {
	case ClassRateLimited:
		st.rateLimits++
		if st.rateLimits > p.MaxRateLimitRetries {
			return 0, false
		}
		if retryAfter > 0 {
			return retryAfter, true
		}
		return p.RetryDelay * time.Duration(st.rateLimits+1), true

	case ClassTransient, ClassSemantic:
		st.failures++
		if st.failures >= p.MaxAttempts {
			return 0, false
		}
		return p.RetryDelay * time.Duration(st.failures), true

	default:
		return 0, false
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
