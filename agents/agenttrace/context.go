/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// ExecutionContext describes the session a trace belongs to.
type ExecutionContext struct {
	SessionID  string `json:"session_id,omitempty"`
	Repository string `json:"repository,omitempty"` // "owner/name"
	Branch     string `json:"branch,omitempty"`
	Trigger    string `json:"trigger,omitempty"` // "api" or a webhook task kind
}

// EnrichAttributes appends the bounded attributes of e to baseAttrs.
// Session id and branch are left to traces to keep metric cardinality low.
func (e ExecutionContext) EnrichAttributes(baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(baseAttrs), len(baseAttrs)+2)
	copy(attrs, baseAttrs)
	if e.Repository != "" {
		attrs = append(attrs, attribute.String("repository", e.Repository))
	}
	if e.Trigger != "" {
		attrs = append(attrs, attribute.String("trigger", e.Trigger))
	}
	return attrs
}

type executionContextKey struct{}

// WithExecutionContext adds execution context to ctx.
func WithExecutionContext(ctx context.Context, execCtx ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, execCtx)
}

// GetExecutionContext retrieves execution context from ctx.
func GetExecutionContext(ctx context.Context) ExecutionContext {
	if execCtx, ok := ctx.Value(executionContextKey{}).(ExecutionContext); ok {
		return execCtx
	}
	return ExecutionContext{}
}
