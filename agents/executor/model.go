/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executor defines the provider-independent conversation the
// orchestrator drives and the Model interface that claudeexecutor and
// googleexecutor implement.
package executor

import (
	"context"

	"chainguard.dev/repoagent/agents/toolcall"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolResult is the outcome of one tool call as sent back to the model.
// Content is JSON.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Message is one conversation turn. An assistant message carries the text
// and tool calls the model produced; the user message that follows it
// carries the results of those calls.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []toolcall.ToolCall
	ToolResults []ToolResult
}

// UserText returns a user message holding text.
func UserText(text string) Message { return Message{Role: RoleUser, Text: text} }

// Request is everything a model needs for one step.
type Request struct {
	System   string
	Messages []Message
	Tools    map[string]toolcall.Tool
}

// Turn is the model's complete response for one step.
type Turn struct {
	Text         string
	ToolCalls    []toolcall.ToolCall
	InputTokens  int64
	OutputTokens int64
}

// Message converts the turn into the assistant message that records it in
// the conversation.
func (t Turn) Message() Message {
	return Message{Role: RoleAssistant, Text: t.Text, ToolCalls: t.ToolCalls}
}

// TextFunc receives text deltas as the model produces them.
type TextFunc func(delta string)

// Model streams one step of a conversation. Implementations call onText
// for every text delta before returning the accumulated Turn. Transient
// failures are retried only while nothing has been streamed.
type Model interface {
	Name() string
	Stream(ctx context.Context, req Request, onText TextFunc) (Turn, error)
}
