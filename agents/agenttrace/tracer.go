/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"github.com/chainguard-dev/clog"
)

// Tracer receives completed traces.
type Tracer interface {
	RecordTrace(trace *Trace)
}

type byCode func(*Trace)

func (f byCode) RecordTrace(trace *Trace) { f(trace) }

// ByCode adapts a function to a Tracer.
func ByCode(f func(*Trace)) Tracer { return byCode(f) }

// NewDefaultTracer logs each completed trace with clog.
func NewDefaultTracer(ctx context.Context) Tracer {
	logger := clog.FromContext(ctx)
	return ByCode(func(trace *Trace) {
		logger.With(
			"session_id", trace.ID,
			"duration_ms", trace.Duration().Milliseconds(),
			"tool_calls", len(trace.Invocations),
			"outcome", string(trace.Outcome),
		).Info("Agent session completed", "trace", trace.String())
	})
}

type tracerKey struct{}

// WithTracer attaches tracer to ctx.
func WithTracer(ctx context.Context, tracer Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, tracer)
}

// TracerFromContext returns the tracer attached to ctx, or the default tracer.
func TracerFromContext(ctx context.Context) Tracer {
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok && t != nil {
		return t
	}
	return NewDefaultTracer(ctx)
}

type multi []Tracer

func (m multi) RecordTrace(trace *Trace) {
	for _, t := range m {
		t.RecordTrace(trace)
	}
}

// Multi fans each trace out to every non-nil tracer, in order.
func Multi(tracers ...Tracer) Tracer {
	m := make(multi, 0, len(tracers))
	for _, t := range tracers {
		if t != nil {
			m = append(m, t)
		}
	}
	return m
}
