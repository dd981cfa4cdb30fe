/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"chainguard.dev/repoagent/agents/executor/retry"
)

// Option configures an Executor.
type Option func(*Executor) error

// WithModel sets the model to use for generation.
func WithModel(model string) Option {
	return func(e *Executor) error {
		if !strings.HasPrefix(model, "gemini-") {
			return fmt.Errorf("model %q does not appear to be a Gemini model (expected gemini-* format)", model)
		}
		e.model = model
		return nil
	}
}

// WithTemperature sets the temperature for generation. Gemini accepts
// values from 0.0 to 2.0.
func WithTemperature(temperature float32) Option {
	return func(e *Executor) error {
		if temperature < 0.0 || temperature > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temperature)
		}
		e.temperature = temperature
		return nil
	}
}

// WithMaxOutputTokens sets the maximum output tokens for generation.
func WithMaxOutputTokens(tokens int32) Option {
	return func(e *Executor) error {
		if tokens <= 0 {
			return fmt.Errorf("max output tokens must be positive, got %d", tokens)
		}
		if tokens > 32768 {
			return fmt.Errorf("max output tokens %d exceeds maximum of 32768", tokens)
		}
		e.maxOutputTokens = tokens
		return nil
	}
}

// WithRetryConfig sets the retry policy for transient errors such as 429
// RESOURCE_EXHAUSTED. AttemptTimeout bounds each model call.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Executor) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.retryConfig = cfg
		return nil
	}
}

// WithResourceLabels sets labels sent with each Vertex AI request for
// billing attribution. service_name defaults to K_SERVICE; labels given
// here win over it.
func WithResourceLabels(labels map[string]string) Option {
	return func(e *Executor) error {
		serviceName := os.Getenv("K_SERVICE")
		if serviceName == "" {
			serviceName = "unknown"
		}
		e.resourceLabels = map[string]string{"service_name": serviceName}
		maps.Copy(e.resourceLabels, labels)
		return nil
	}
}
