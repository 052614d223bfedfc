// Package resilience provides the retry, circuit breaker, and provider
// failover primitives shared by every provider client in the interview
// pipeline.
//
// The central type is [Retryer]: bounded attempts, exponential backoff between
// attempts, and a per-attempt timeout. [CircuitBreaker] is a classic
// three-state breaker that protects callers from hammering a failing
// provider, and [FallbackGroup] composes multiple instances of any provider
// type with per-entry breakers so a failing primary is bypassed in favour of
// a healthy fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default retry parameters, used when the corresponding RetryConfig field is
// zero. The concrete values per provider come from configuration.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 4 * time.Second
	defaultAttemptTimeout = 15 * time.Second
)

// RetryConfig holds tuning knobs for a [Retryer].
type RetryConfig struct {
	// Name is a human-readable label used in log messages (e.g., "stt").
	Name string

	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt. It doubles
	// after each failure up to MaxBackoff. Default: 250ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth. Default: 4s.
	MaxBackoff time.Duration

	// AttemptTimeout bounds each individual attempt. Default: 15s.
	AttemptTimeout time.Duration
}

// Retryer executes provider calls with bounded retries, exponential backoff,
// and a per-attempt timeout. The zero value is not usable; construct with
// [NewRetryer].
type Retryer struct {
	name           string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
}

// NewRetryer creates a [Retryer]. Zero-value config fields are replaced with
// defaults.
func NewRetryer(cfg RetryConfig) *Retryer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	return &Retryer{
		name:           cfg.Name,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		attemptTimeout: cfg.AttemptTimeout,
	}
}

// permanentError marks an error as not worth retrying.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that a [Retryer] stops immediately instead of
// retrying. Use for failures that cannot succeed on a second attempt, such as
// a denied permission or a malformed request.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// [Permanent].
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn with retry semantics. Each attempt receives a context bounded by
// the attempt timeout and cancelled when ctx is. Returns nil on the first
// success, the underlying error once attempts are exhausted, immediately on a
// [Permanent] error, or ctx.Err() when the caller's context ends first.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult runs fn with retry semantics and returns its result. This is a
// package-level function because Go does not support method-level type
// parameters.
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	backoff := r.initialBackoff
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == r.maxAttempts {
			break
		}

		slog.Warn("provider call failed, backing off",
			"name", r.name,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return zero, fmt.Errorf("resilience: %s: %d attempts exhausted: %w", r.name, r.maxAttempts, lastErr)
}
