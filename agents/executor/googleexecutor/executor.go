/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/executor/retry"
	"chainguard.dev/repoagent/agents/toolcall"
	"chainguard.dev/repoagent/agents/toolcall/googletool"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// DefaultModel is used when WithModel is not given.
const DefaultModel = "gemini-2.5-flash"

// maxMalformedRetries bounds how often a malformed function call is sent
// back to the model within one step.
const maxMalformedRetries = 1

// Executor streams conversation steps from Gemini.
type Executor struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	retryConfig     retry.Config
	resourceLabels  map[string]string
}

var _ executor.Model = (*Executor)(nil)

// New creates an Executor over client.
func New(client *genai.Client, opts ...Option) (*Executor, error) {
	e := &Executor{
		client:          client,
		model:           DefaultModel,
		temperature:     0.1,
		maxOutputTokens: 8192,
		retryConfig:     retry.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Name returns the model name.
func (e *Executor) Name() string { return e.model }

// Stream runs one step. Text deltas are passed to onText as they arrive.
func (e *Executor) Stream(ctx context.Context, req executor.Request, onText executor.TextFunc) (executor.Turn, error) {
	log := clog.FromContext(ctx)

	config := &genai.GenerateContentConfig{
		Temperature:     ptr(e.temperature),
		MaxOutputTokens: e.maxOutputTokens,
		Tools:           googletool.Tools(req.Tools),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(e.resourceLabels) > 0 {
		config.Labels = e.resourceLabels
	}

	conversation := contents(req.Messages)
	var total executor.Turn
	for attempt := 0; ; attempt++ {
		turn, malformed, err := e.step(ctx, conversation, config, onText)
		if err != nil {
			return executor.Turn{}, err
		}
		total.Text += turn.Text
		total.ToolCalls = turn.ToolCalls
		total.InputTokens += turn.InputTokens
		total.OutputTokens += turn.OutputTokens
		if !malformed || attempt >= maxMalformedRetries {
			return total, nil
		}

		log.Warn("Model attempted a malformed function call, asking it to retry")
		conversation = append(conversation, genai.NewContentFromText(
			fmt.Sprintf("The function call was malformed. Please try again using the available functions: %v",
				slices.Sorted(maps.Keys(req.Tools))),
			genai.RoleUser,
		))
	}
}

// step streams one model response. It reports whether the model finished
// on a malformed function call.
func (e *Executor) step(ctx context.Context, conversation []*genai.Content, config *genai.GenerateContentConfig, onText executor.TextFunc) (executor.Turn, bool, error) {
	// Once a delta has been emitted the step cannot be replayed.
	var streamed atomic.Bool
	retryable := func(err error) bool {
		return !streamed.Load() && isRetryable(err)
	}

	type result struct {
		turn      executor.Turn
		malformed bool
	}
	res, err := retry.Do(ctx, e.retryConfig, "generate_content_stream", retryable, func(ctx context.Context) (result, error) {
		var (
			out  result
			text strings.Builder
		)
		for resp, err := range e.client.Models.GenerateContentStream(ctx, e.model, conversation, config) {
			if err != nil {
				return out, err
			}
			if resp.UsageMetadata != nil {
				out.turn.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
				out.turn.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			candidate := resp.Candidates[0]
			if candidate.FinishReason == genai.FinishReasonMalformedFunctionCall {
				out.malformed = true
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				switch {
				case part.Thought:
				case part.FunctionCall != nil:
					out.turn.ToolCalls = append(out.turn.ToolCalls, googletool.Call(part.FunctionCall, "call_"+uuid.NewString()))
				case part.Text != "":
					streamed.Store(true)
					text.WriteString(part.Text)
					if onText != nil {
						onText(part.Text)
					}
				}
			}
		}
		out.turn.Text = text.String()
		return out, nil
	})
	if err != nil {
		return executor.Turn{}, false, fmt.Errorf("failed to stream Gemini response: %w", classify(err))
	}
	return res.turn, res.malformed && len(res.turn.ToolCalls) == 0, nil
}

// contents converts the conversation into Gemini contents.
func contents(msgs []executor.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var parts []*genai.Part
		for _, r := range m.ToolResults {
			parts = append(parts, googletool.Response(toolcall.ToolCall{ID: r.CallID, Name: r.Name}, response(r)))
		}
		if m.Text != "" {
			parts = append(parts, &genai.Part{Text: m.Text})
		}
		for _, c := range m.ToolCalls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: c.ID, Name: c.Name, Args: c.Args}})
		}
		if len(parts) == 0 {
			continue
		}

		role := genai.RoleUser
		if m.Role == executor.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{Role: string(role), Parts: parts})
	}
	return out
}

// response decodes a JSON tool result into the object Gemini expects.
// Failed calls are reported under "error".
func response(r executor.ToolResult) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(r.Content), &v); err != nil {
		v = r.Content
	}
	if r.IsError {
		return map[string]any{"error": v}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"output": v}
}

func ptr[T any](v T) *T {
	return &v
}
