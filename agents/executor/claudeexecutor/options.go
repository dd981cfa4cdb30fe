/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"fmt"
	"strings"

	"chainguard.dev/repoagent/agents/executor/retry"
)

// Option configures an Executor.
type Option func(*Executor) error

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(e *Executor) error {
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("model %q does not appear to be a Claude model (expected claude-* format)", model)
		}
		e.model = model
		return nil
	}
}

// WithMaxTokens sets the maximum tokens per response.
func WithMaxTokens(tokens int64) Option {
	return func(e *Executor) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		if tokens > 32000 {
			return fmt.Errorf("max tokens %d exceeds maximum of 32000", tokens)
		}
		e.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature, from 0.0 to 1.0.
func WithTemperature(temp float64) Option {
	return func(e *Executor) error {
		if temp < 0.0 || temp > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithRetryConfig sets the retry policy for transient API errors such as
// 429 rate limits and 529 overloads. AttemptTimeout bounds each model call.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Executor) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.retryConfig = cfg
		return nil
	}
}
