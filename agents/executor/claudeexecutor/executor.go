/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/executor/retry"
	"chainguard.dev/repoagent/agents/toolcall"
	"chainguard.dev/repoagent/agents/toolcall/claudetool"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

// DefaultModel is used when WithModel is not given.
const DefaultModel = "claude-sonnet-4@20250514"

// Executor streams conversation steps from Claude.
type Executor struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	retryConfig retry.Config
}

var _ executor.Model = (*Executor)(nil)

// New creates an Executor over client.
func New(client anthropic.Client, opts ...Option) (*Executor, error) {
	e := &Executor{
		client:      client,
		model:       DefaultModel,
		maxTokens:   8192,
		temperature: 0.1,
		retryConfig: retry.DefaultConfig(),
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
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages:  messages(req.Messages),
		Tools:     claudetool.Tools(req.Tools),
	}
	params.Temperature = anthropic.Float(e.temperature)
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	// Once a delta has been emitted the step cannot be replayed.
	var streamed atomic.Bool
	retryable := func(err error) bool {
		return !streamed.Load() && isRetryable(err)
	}

	message, err := retry.Do(ctx, e.retryConfig, "stream_message", retryable, func(ctx context.Context) (anthropic.Message, error) {
		stream := e.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var msg anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				return msg, fmt.Errorf("failed to accumulate event: %w", err)
			}
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
					streamed.Store(true)
					if onText != nil {
						onText(text.Text)
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			return msg, err
		}
		return msg, nil
	})
	if err != nil {
		return executor.Turn{}, fmt.Errorf("failed to stream Claude response: %w", classify(err))
	}

	return turn(ctx, message), nil
}

func turn(ctx context.Context, message anthropic.Message) executor.Turn {
	out := executor.Turn{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}
	var text strings.Builder
	for _, content := range message.Content {
		switch content.Type {
		case "text":
			text.WriteString(content.Text)
		case "tool_use":
			call, err := claudetool.Call(content.ID, content.Name, content.Input)
			if err != nil {
				// The handler reports the missing arguments back to the model.
				clog.FromContext(ctx).With("tool", content.Name).With("error", err.Error()).Warn("Malformed tool input")
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	out.Text = text.String()
	return out
}

// messages converts the conversation into Claude message params.
func messages(msgs []executor.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, r := range m.ToolResults {
			blocks = append(blocks, claudetool.Result(r.CallID, r.Content, r.IsError))
		}
		if m.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
		}
		for _, c := range m.ToolCalls {
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    c.ID,
					Name:  c.Name,
					Input: input(c),
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if m.Role == executor.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func input(c toolcall.ToolCall) json.RawMessage {
	if len(c.Args) == 0 {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(c.Args)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
