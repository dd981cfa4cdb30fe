/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"errors"
	"time"
)

const (
	defaultConcurrency = 4
	defaultQueueSize   = 100
	defaultMaxRetry    = 2
	defaultRetryDelay  = 30 * time.Second
)

// Option configures a Dispatcher. The second argument is the queue size,
// which is only known once all options ran.
type Option func(*Dispatcher, *int) error

// WithConcurrency sets the number of workers.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher, _ *int) error {
		if n < 1 {
			return errors.New("concurrency must be at least 1")
		}
		d.concurrency = n
		return nil
	}
}

// WithQueueSize sets how many tasks may wait for a worker.
func WithQueueSize(n int) Option {
	return func(_ *Dispatcher, size *int) error {
		if n < 1 {
			return errors.New("queue size must be at least 1")
		}
		*size = n
		return nil
	}
}

// WithMaxRetry sets how many times a task failing with a retryable error
// is requeued. 0 disables retries.
func WithMaxRetry(n int) Option {
	return func(d *Dispatcher, _ *int) error {
		if n < 0 {
			return errors.New("max retry cannot be negative")
		}
		d.maxRetry = n
		return nil
	}
}

// WithRetryDelay sets the base delay before a requeued task runs again.
// The delay grows linearly with the attempt number.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher, _ *int) error {
		if delay < 0 {
			return errors.New("retry delay cannot be negative")
		}
		d.retryDelay = delay
		return nil
	}
}
