/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/repository/webhook"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var (
	taskCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoagent_webhook_tasks_total",
			Help: "Total number of webhook tasks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repoagent_webhook_queue_depth",
			Help: "Number of webhook tasks waiting for a worker",
		},
	)
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = agenterr.Newf(agenterr.KindRateLimited, "submit", "task queue is full")

// Callback processes one task.
type Callback func(ctx context.Context, task webhook.Task) error

type nonRetriableError struct {
	err    error
	reason string
}

func (e *nonRetriableError) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *nonRetriableError) Unwrap() error { return e.err }

// NonRetriableError marks err so the dispatcher never retries the task,
// whatever its kind.
func NonRetriableError(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &nonRetriableError{err: err, reason: reason}
}

// IsNonRetriable reports whether err was marked with NonRetriableError.
func IsNonRetriable(err error) bool {
	var nre *nonRetriableError
	return errors.As(err, &nre)
}

type item struct {
	task     webhook.Task
	attempts int
}

// Dispatcher runs tasks on a bounded pool of workers. Tasks failing with a
// retryable agenterr kind are requeued up to the retry limit.
type Dispatcher struct {
	callback    Callback
	queue       chan item
	concurrency int
	maxRetry    int
	retryDelay  time.Duration

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

var _ webhook.TaskSink = (*Dispatcher)(nil)

// New creates a Dispatcher calling cb for every submitted task.
func New(cb Callback, opts ...Option) (*Dispatcher, error) {
	if cb == nil {
		return nil, errors.New("callback is required")
	}
	d := &Dispatcher{
		callback:    cb,
		concurrency: defaultConcurrency,
		maxRetry:    defaultMaxRetry,
		retryDelay:  defaultRetryDelay,
		timers:      map[*time.Timer]struct{}{},
	}
	size := defaultQueueSize
	for _, opt := range opts {
		if err := opt(d, &size); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	d.queue = make(chan item, size)
	return d, nil
}

// Submit queues task without blocking.
func (d *Dispatcher) Submit(ctx context.Context, task webhook.Task) error {
	if !d.enqueue(item{task: task}) {
		clog.FromContext(ctx).With("task", string(task.Kind)).Warn("Dropping task, queue is full")
		taskCounter.WithLabelValues(string(task.Kind), "dropped").Inc()
		return ErrQueueFull
	}
	return nil
}

func (d *Dispatcher) enqueue(it item) bool {
	select {
	case d.queue <- it:
		queueDepth.Inc()
		return true
	default:
		return false
	}
}

// Run processes tasks until ctx is done and returns once every worker has
// stopped. Tasks still queued are abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stopTimers()

	g, ctx := errgroup.WithContext(ctx)
	for range d.concurrency {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case it := <-d.queue:
					queueDepth.Dec()
					d.handle(ctx, it)
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, it item) {
	task := it.task
	log := clog.FromContext(ctx).
		With("task", string(task.Kind)).
		With("delivery", task.DeliveryID).
		With("repo", task.Repo.String()).
		With("attempt", it.attempts+1)
	ctx = clog.WithLogger(ctx, log)

	err := d.call(ctx, task)
	switch {
	case err == nil:
		log.Info("Task completed")
		taskCounter.WithLabelValues(string(task.Kind), "completed").Inc()

	case ctx.Err() != nil:
		log.With("error", err.Error()).Warn("Task interrupted by shutdown")
		taskCounter.WithLabelValues(string(task.Kind), "interrupted").Inc()

	case IsNonRetriable(err) || !agenterr.IsRetryable(err):
		log.With("error", err.Error()).With("kind", string(agenterr.KindOf(err))).Error("Task failed")
		taskCounter.WithLabelValues(string(task.Kind), "failed").Inc()

	case it.attempts >= d.maxRetry:
		log.With("error", err.Error()).With("max_retry", d.maxRetry).Error("Task dead-lettered after retries")
		taskCounter.WithLabelValues(string(task.Kind), "dead_lettered").Inc()

	default:
		wait := d.retryDelay * time.Duration(it.attempts+1)
		log.With("error", err.Error()).With("delay", wait).Warn("Task failed, requeueing")
		taskCounter.WithLabelValues(string(task.Kind), "requeued").Inc()
		d.requeueAfter(ctx, item{task: task, attempts: it.attempts + 1}, wait)
	}
}

// call runs the callback, converting a panic into an error.
func (d *Dispatcher) call(ctx context.Context, task webhook.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NonRetriableError(fmt.Errorf("%v", r), "task panicked")
		}
	}()
	return d.callback(ctx, task)
}

func (d *Dispatcher) requeueAfter(ctx context.Context, it item, wait time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(wait, func() {
		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()
		if !d.enqueue(it) {
			clog.FromContext(ctx).Error("Task dead-lettered, queue is full")
			taskCounter.WithLabelValues(string(it.task.Kind), "dead_lettered").Inc()
		}
	})
	d.timers[t] = struct{}{}
}

func (d *Dispatcher) stopTimers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t := range d.timers {
		t.Stop()
		delete(d.timers, t)
	}
}
