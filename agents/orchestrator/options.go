/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"errors"
	"fmt"

	"chainguard.dev/repoagent/agents/metrics"
)

// DefaultMaxSteps is the step budget when WithMaxSteps is not given.
const DefaultMaxSteps = 60

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithMaxSteps sets the step budget.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return fmt.Errorf("max steps must be positive, got %d", n)
		}
		o.maxSteps = n
		return nil
	}
}

// WithSystemPrompt sets the system prompt sent with every step.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) error {
		o.system = prompt
		return nil
	}
}

// WithConcurrentTools dispatches the tool calls of one step concurrently,
// at most limit at a time. Results are still emitted in call order.
func WithConcurrentTools(limit int) Option {
	return func(o *Orchestrator) error {
		if limit < 1 {
			return fmt.Errorf("concurrency limit must be at least 1, got %d", limit)
		}
		o.concurrency = limit
		return nil
	}
}

// WithMetrics replaces the GenAI counters.
func WithMetrics(m *metrics.GenAI) Option {
	return func(o *Orchestrator) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		o.metrics = m
		return nil
	}
}
