/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/executor/claudeexecutor"
	"chainguard.dev/repoagent/agents/executor/googleexecutor"
	"chainguard.dev/repoagent/agents/executor/retry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"google.golang.org/genai"
)

// models builds executors for the providers the process has credentials for.
type models struct {
	claude *anthropic.Client
	gemini *genai.Client
	// vertex reports whether gemini is served by Vertex AI, which accepts
	// resource labels.
	vertex bool
	retry  retry.Config
}

// newModels creates the provider clients. An API key wins over Vertex AI;
// a provider without either stays unconfigured.
func newModels(ctx context.Context, cfg *config) (*models, error) {
	m := &models{retry: retry.DefaultConfig()}
	m.retry.AttemptTimeout = cfg.ModelTimeout

	switch {
	case cfg.AnthropicAPIKey != "":
		client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
		m.claude = &client
	case cfg.GCPProjectID != "":
		client := anthropic.NewClient(vertex.WithGoogleAuth(ctx, cfg.GCPRegion, cfg.GCPProjectID))
		m.claude = &client
	}

	var gcfg *genai.ClientConfig
	switch {
	case cfg.GeminiAPIKey != "":
		gcfg = &genai.ClientConfig{APIKey: cfg.GeminiAPIKey, Backend: genai.BackendGeminiAPI}
	case cfg.GCPProjectID != "":
		gcfg = &genai.ClientConfig{Project: cfg.GCPProjectID, Location: cfg.GCPRegion, Backend: genai.BackendVertexAI}
		m.vertex = true
	}
	if gcfg != nil {
		client, err := genai.NewClient(ctx, gcfg)
		if err != nil {
			return nil, fmt.Errorf("creating Google AI client: %w", err)
		}
		m.gemini = client
	}
	return m, nil
}

// Model resolves name by its provider prefix.
func (m *models) Model(_ context.Context, name string) (executor.Model, error) {
	switch {
	case strings.HasPrefix(name, "claude-"):
		if m.claude == nil {
			return nil, agenterr.Newf(agenterr.KindConfiguration, "model", "no Anthropic credentials configured for %q", name)
		}
		e, err := claudeexecutor.New(*m.claude, claudeexecutor.WithModel(name), claudeexecutor.WithRetryConfig(m.retry))
		if err != nil {
			return nil, agenterr.New(agenterr.KindValidation, "model", err)
		}
		return e, nil

	case strings.HasPrefix(name, "gemini-"):
		if m.gemini == nil {
			return nil, agenterr.Newf(agenterr.KindConfiguration, "model", "no Gemini credentials configured for %q", name)
		}
		opts := []googleexecutor.Option{
			googleexecutor.WithModel(name),
			googleexecutor.WithRetryConfig(m.retry),
		}
		if m.vertex {
			opts = append(opts, googleexecutor.WithResourceLabels(map[string]string{"component": "repoagent"}))
		}
		e, err := googleexecutor.New(m.gemini, opts...)
		if err != nil {
			return nil, agenterr.New(agenterr.KindValidation, "model", err)
		}
		return e, nil

	default:
		return nil, agenterr.Validation("unsupported model %q", name)
	}
}
