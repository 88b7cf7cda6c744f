package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCik   = errors.New("cik must be a non-empty numeric string")
	ErrTaskNotFound = errors.New("task not found")
	ErrNoHoldings   = errors.New("no holdings found in any latest-date filings for this cik")
)

// NotFoundError ends a task: the CIK either doesn't exist or has no
// qualifying filing.
type NotFoundError struct {
	Message string
}

func (e NotFoundError) Error() string {
	return e.Message
}

// RateLimitedError is self-clearing and non-fatal: the caller may retry
// after RetryAfter.
type RateLimitedError struct {
	RetryAfter  time.Duration
	FrozenUntil time.Time
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfterSeconds())
}

func (e RateLimitedError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// DocumentUnavailableError means every URL candidate for one filing was
// exhausted. It is per-series and never aborts the task.
type DocumentUnavailableError struct {
	Accession  string
	LastStatus int
}

func (e DocumentUnavailableError) Error() string {
	return fmt.Sprintf("document for filing %s is not available (last status %d)", e.Accession, e.LastStatus)
}

// UpstreamError wraps a network or format failure talking to EDGAR.
type UpstreamError struct {
	Err error
}

func (e UpstreamError) Error() string {
	return "sec api unavailable: " + e.Err.Error()
}

func (e UpstreamError) Unwrap() error {
	return e.Err
}
