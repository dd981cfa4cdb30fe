/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.ai.agents.agenttrace"

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeDone            Outcome = "done"
	OutcomeBudgetExhausted Outcome = "budget-exhausted"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeError           Outcome = "error"
)

// ToolInvocation is one tool call requested by the model. Sequence fixes
// its position in the session's output regardless of handler latency.
type ToolInvocation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind agenterr.Kind  `json:"error_kind,omitempty"`
	Sequence  int            `json:"sequence"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	err       error
	trace     *Trace
	mu        sync.Mutex
	span      oteltrace.Span
}

// Failed reports whether the handler returned an error.
func (ti *ToolInvocation) Failed() bool { return ti.ErrorKind != "" }

// Err returns the handler's error, if any.
func (ti *ToolInvocation) Err() error {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.err
}

// Trace records one orchestration session.
type Trace struct {
	ID          string            `json:"id"`
	ExecContext ExecutionContext  `json:"exec_context"`
	Model       string            `json:"model,omitempty"`
	Invocations []*ToolInvocation `json:"invocations"`
	Steps       int               `json:"steps"`
	Outcome     Outcome           `json:"outcome,omitempty"`
	Error       error             `json:"error,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	tracer      Tracer
	mu          sync.Mutex
	ctx         context.Context
	span        oteltrace.Span
}

// StartTrace begins a trace for the session described by ctx's execution
// context and reports it to the context's tracer on Complete.
func StartTrace(ctx context.Context, model string) *Trace {
	execCtx := GetExecutionContext(ctx)

	attrs := []attribute.KeyValue{attribute.String("model", model)}
	if execCtx.SessionID != "" {
		attrs = append(attrs, attribute.String("session_id", execCtx.SessionID))
	}
	if execCtx.Repository != "" {
		attrs = append(attrs, attribute.String("repository", execCtx.Repository))
	}
	if execCtx.Branch != "" {
		attrs = append(attrs, attribute.String("branch", execCtx.Branch))
	}
	if execCtx.Trigger != "" {
		attrs = append(attrs, attribute.String("trigger", execCtx.Trigger))
	}

	tr := otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "agent.session", oteltrace.WithAttributes(attrs...))

	id := execCtx.SessionID
	if id == "" {
		id = span.SpanContext().TraceID().String()
	}
	return &Trace{
		ID:          id,
		ExecContext: execCtx,
		Model:       model,
		Invocations: []*ToolInvocation{},
		StartTime:   time.Now(),
		tracer:      TracerFromContext(ctx),
		ctx:         ctx,
		span:        span,
	}
}

// Context returns the context carrying the session span.
func (t *Trace) Context() context.Context { return t.ctx }

// StartToolCall opens a span for one invocation.
func (t *Trace) StartToolCall(id, name string, args map[string]any, sequence int) *ToolInvocation {
	tr := otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
	_, span := tr.Start(t.ctx, "agent.tool_call", oteltrace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.id", id),
		attribute.Int("tool.sequence", sequence),
	))
	return &ToolInvocation{
		ID:        id,
		Name:      name,
		Arguments: args,
		Sequence:  sequence,
		StartTime: time.Now(),
		trace:     t,
		span:      span,
	}
}

// RecordStep counts one model round trip.
func (t *Trace) RecordStep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Steps++
}

// RecordTokenUsage adds token counts to the session span.
func (t *Trace) RecordTokenUsage(inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.span != nil {
		t.span.AddEvent("model.usage", oteltrace.WithAttributes(
			attribute.Int64("tokens.input", inputTokens),
			attribute.Int64("tokens.output", outputTokens),
		))
	}
}

// Complete records the handler's outcome and attaches the invocation to
// its trace. A non-nil err is classified with agenterr.
func (ti *ToolInvocation) Complete(result any, err error) {
	ti.mu.Lock()
	ti.EndTime = time.Now()
	if err != nil {
		ti.err = err
		ti.Error = err.Error()
		ti.ErrorKind = agenterr.KindOf(err)
	} else {
		ti.Result = result
	}
	span := ti.span
	trace := ti.trace
	ti.mu.Unlock()

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.kind", string(agenterr.KindOf(err))))
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	if trace != nil {
		trace.mu.Lock()
		defer trace.mu.Unlock()
		trace.Invocations = append(trace.Invocations, ti)
	}
}

// Duration returns how long the handler ran.
func (ti *ToolInvocation) Duration() time.Duration {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.EndTime.IsZero() {
		return time.Since(ti.StartTime)
	}
	return ti.EndTime.Sub(ti.StartTime)
}

// Complete closes the session span and hands the trace to the tracer.
func (t *Trace) Complete(outcome Outcome, err error) {
	t.mu.Lock()
	t.Outcome = outcome
	t.Error = err
	t.EndTime = time.Now()
	span := t.span
	tracer := t.tracer
	steps := t.Steps
	t.mu.Unlock()

	if span != nil {
		span.SetAttributes(attribute.String("outcome", string(outcome)), attribute.Int("steps", steps))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	if tracer != nil {
		tracer.RecordTrace(t)
	}
}

// Duration returns the total duration of the session.
func (t *Trace) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// String renders the trace for logs.
func (t *Trace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Session %s ===\n", t.ID)
	fmt.Fprintf(&sb, "Model: %s, steps: %d, outcome: %s\n", t.Model, t.Steps, t.Outcome)
	if len(t.Invocations) == 0 {
		sb.WriteString("No tool calls\n")
	}
	for _, ti := range t.Invocations {
		status := "ok"
		if ti.ErrorKind != "" {
			status = fmt.Sprintf("%s: %s", ti.ErrorKind, ti.Error)
		}
		fmt.Fprintf(&sb, "  [%d] %s (ID: %s) %s\n", ti.Sequence, ti.Name, ti.ID, status)
	}
	if t.Error != nil {
		fmt.Fprintf(&sb, "Error: %v\n", t.Error)
	}
	return sb.String()
}
