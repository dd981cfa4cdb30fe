/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics provides OpenTelemetry counters for agent sessions.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// AttributeEnricher adds contextual attributes (repository, trigger) to
// the base attributes of every recorded measurement.
type AttributeEnricher func(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue

// GenAI records token usage, tool calls, and session steps. Counters that
// fail to initialize fall back to no-ops.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	toolCalls        metric.Int64Counter
	steps            metric.Int64Counter
	sessions         metric.Int64Counter
	attrEnricher     AttributeEnricher
}

// NewGenAI creates the counters on the named meter. The model is carried as
// an attribute so one meter serves every executor.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))
	counter := func(name, description, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
		if err != nil {
			slog.Warn("Failed to create counter, metrics will be disabled", "error", err, "meter", meterName, "counter", name)
			return noop.Int64Counter{}
		}
		return c
	}
	return &GenAI{
		promptTokens:     counter("genai.token.prompt", "The number of prompt tokens used", "{tokens}"),
		completionTokens: counter("genai.token.completion", "The number of completion tokens used", "{tokens}"),
		toolCalls:        counter("genai.tool.calls", "The number of tool calls made during execution", "{calls}"),
		steps:            counter("genai.session.steps", "The number of model round trips", "{steps}"),
		sessions:         counter("genai.session.completed", "The number of finished agent sessions", "{sessions}"),
	}
}

// SetAttributeEnricher sets the enricher applied before each measurement.
func (m *GenAI) SetAttributeEnricher(enricher AttributeEnricher) {
	m.attrEnricher = enricher
}

func (m *GenAI) attributes(ctx context.Context, base []attribute.KeyValue, extra []attribute.KeyValue) metric.MeasurementOption {
	if m.attrEnricher != nil {
		base = m.attrEnricher(ctx, base)
	}
	return metric.WithAttributes(append(base, extra...)...)
}

// RecordTokens records prompt and completion token usage for one model turn.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64, attrs ...attribute.KeyValue) {
	opt := m.attributes(ctx, []attribute.KeyValue{attribute.String("model", model)}, attrs)
	m.promptTokens.Add(ctx, promptTokens, opt)
	m.completionTokens.Add(ctx, completionTokens, opt)
}

// RecordToolCall records one tool invocation. errorKind is empty on success.
func (m *GenAI) RecordToolCall(ctx context.Context, model, toolName, errorKind string, attrs ...attribute.KeyValue) {
	status := "ok"
	if errorKind != "" {
		status = errorKind
	}
	m.toolCalls.Add(ctx, 1, m.attributes(ctx, []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("tool", toolName),
		attribute.String("status", status),
	}, attrs))
}

// RecordStep records one model round trip.
func (m *GenAI) RecordStep(ctx context.Context, model string, attrs ...attribute.KeyValue) {
	m.steps.Add(ctx, 1, m.attributes(ctx, []attribute.KeyValue{attribute.String("model", model)}, attrs))
}

// RecordSession records how a session ended.
func (m *GenAI) RecordSession(ctx context.Context, model, outcome string, attrs ...attribute.KeyValue) {
	m.sessions.Add(ctx, 1, m.attributes(ctx, []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	}, attrs))
}
