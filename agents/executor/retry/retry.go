/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs remote calls with per-attempt timeouts and jittered
// exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"github.com/chainguard-dev/clog"
)

// Config configures retries and the timeout of each attempt.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. 0 disables retry.
	MaxRetries int
	// BaseBackoff is the first backoff, doubled on each retry.
	BaseBackoff time.Duration
	// MaxBackoff caps the backoff.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of random jitter added to each backoff.
	MaxJitter time.Duration
	// AttemptTimeout bounds a single attempt. 0 means no per-attempt deadline.
	AttemptTimeout time.Duration
}

// Validate checks that no field is negative.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.BaseBackoff < 0:
		return errors.New("base backoff cannot be negative")
	case c.MaxBackoff < 0:
		return errors.New("max backoff cannot be negative")
	case c.MaxJitter < 0:
		return errors.New("max jitter cannot be negative")
	case c.AttemptTimeout < 0:
		return errors.New("attempt timeout cannot be negative")
	}
	return nil
}

// DefaultConfig suits provider rate limits, which tend to need seconds
// rather than milliseconds to clear.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  60 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Do calls fn until it succeeds, returns an error isRetryable rejects, or
// retries run out. Each attempt receives its own deadline when
// AttemptTimeout is set; an attempt that hits it fails with KindTimeout.
// Exhausted retries are reported as KindRateLimited unless the last
// failure was already classified.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = runAttempt(ctx, cfg.AttemptTimeout, operation, fn)
		if lastErr == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, lastErr
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		wait := backoff(cfg, attempt)
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", wait).
			With("error", lastErr.Error()).
			Warn("Retryable failure, backing off")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}

	if agenterr.KindOf(lastErr) != agenterr.KindUnknown {
		return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
	}
	return result, agenterr.New(agenterr.KindRateLimited, operation, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr))
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, operation string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := fn(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return result, agenterr.New(agenterr.KindTimeout, operation, err)
	}
	return result, err
}

func backoff(cfg Config, attempt int) time.Duration {
	wait := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)
	if cfg.MaxJitter > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(cfg.MaxJitter))); err == nil {
			wait += time.Duration(n.Int64())
		}
	}
	return wait
}
