/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"sync"
	"sync/atomic"
)

// Grade is a score with its reasoning.
type Grade struct {
	Score     float64
	Reasoning string
}

// ResultCollector records failures and grades, forwarding everything to an
// optional inner Observer. Failures are forwarded as logs.
type ResultCollector struct {
	inner    Observer
	failures []string
	grades   []Grade
	total    atomic.Int64
	mu       sync.Mutex
}

// NewResultCollector wraps inner, which may be nil.
func NewResultCollector(inner Observer) *ResultCollector {
	return &ResultCollector{inner: inner}
}

func (r *ResultCollector) Fail(msg string) {
	if r.inner != nil {
		r.inner.Log(msg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
}

func (r *ResultCollector) Log(msg string) {
	if r.inner != nil {
		r.inner.Log(msg)
	}
}

func (r *ResultCollector) Grade(score float64, reasoning string) {
	if r.inner != nil {
		r.inner.Grade(score, reasoning)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grades = append(r.grades, Grade{Score: score, Reasoning: reasoning})
}

func (r *ResultCollector) Increment() {
	r.total.Add(1)
	if r.inner != nil {
		r.inner.Increment()
	}
}

func (r *ResultCollector) Total() int64 { return r.total.Load() }

// Failures returns a copy of the collected failure messages.
func (r *ResultCollector) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// Grades returns a copy of the collected grades.
func (r *ResultCollector) Grades() []Grade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Grade(nil), r.grades...)
}
