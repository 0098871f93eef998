// Package guard implements the request-shaping checks applied before any
// upstream work: input sanitization, prompt-injection detection, per-client
// sliding-window rate limiting, response caching, and bounded-concurrency
// admission.
package guard

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyInput signals input that normalized to nothing.
	ErrEmptyInput = errors.New("empty input")

	// ErrInjection signals input matching a prompt-injection pattern.
	ErrInjection = errors.New("possible prompt injection")

	// ErrServerBusy signals that the concurrency cap is saturated.
	ErrServerBusy = errors.New("server busy")
)

// InputTooLongError reports input exceeding the configured ceiling.
type InputTooLongError struct {
	Length int
	Limit  int
}

func (e *InputTooLongError) Error() string {
	return fmt.Sprintf("input of %d characters exceeds limit of %d", e.Length, e.Limit)
}

// RateLimitedError reports an exceeded rate limit and how long the client
// must wait before the oldest in-window request expires.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}
