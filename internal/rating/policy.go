package rating

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"torrent-rating-notifier/internal/fetcher"
)

// Class buckets one request outcome for retry purposes.
type Class int

const (
	ClassOK Class = iota
	ClassRateLimited
	ClassAccessDenied
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassRateLimited:
		return "rate_limited"
	case ClassAccessDenied:
		return "access_denied"
	default:
		return "transient"
	}
}

var (
	ErrRateLimited  = errors.New("rate limited")
	ErrAccessDenied = errors.New("access denied")
)

// TransientFetchError covers network errors, timeouts, unexpected statuses
// and unusable bodies.
type TransientFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient fetch error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transient fetch error for %s: status %d", e.URL, e.Status)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every attempt failed. Last is the error of
// the final attempt.
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up on %s after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// classify maps a fetch outcome to its class and the error describing it.
func classify(urlStr string, resp *fetcher.FetchResponse, err error) (Class, error) {
	if err != nil {
		return ClassTransient, &TransientFetchError{URL: urlStr, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ClassRateLimited, ErrRateLimited
	case resp.StatusCode == http.StatusForbidden:
		return ClassAccessDenied, ErrAccessDenied
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return ClassTransient, &TransientFetchError{URL: urlStr, Status: resp.StatusCode}
	case len(resp.Body) == 0:
		return ClassTransient, &TransientFetchError{URL: urlStr, Status: resp.StatusCode, Err: errors.New("empty body")}
	}
	return ClassOK, nil
}

// retryPolicy is how long to back off after a failed attempt of a class:
// attempt × unit. A zero unit retries straight away.
type retryPolicy struct {
	unit time.Duration
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	return time.Duration(attempt) * p.unit
}

func policyTable(rateLimitUnit, accessDeniedUnit time.Duration) map[Class]retryPolicy {
	return map[Class]retryPolicy{
		ClassRateLimited:  {unit: rateLimitUnit},
		ClassAccessDenied: {unit: accessDeniedUnit},
		ClassTransient:    {unit: 0},
	}
}
