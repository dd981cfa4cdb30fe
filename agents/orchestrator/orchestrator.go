/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/metrics"
	"chainguard.dev/repoagent/agents/toolcall"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

// genericErrorMessage is the only detail a fatal error frame carries.
const genericErrorMessage = "the agent session failed; see server logs"

// Orchestrator runs the step-bounded tool loop against one model.
type Orchestrator struct {
	model       executor.Model
	tools       map[string]toolcall.Tool
	system      string
	maxSteps    int
	concurrency int
	metrics     *metrics.GenAI
}

// New wires model to tools.
func New(model executor.Model, tools map[string]toolcall.Tool, opts ...Option) (*Orchestrator, error) {
	if model == nil {
		return nil, agenterr.Newf(agenterr.KindConfiguration, "orchestrator", "model is required")
	}
	m := metrics.NewGenAI("chainguard.ai.agents")
	m.SetAttributeEnricher(func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue {
		return agenttrace.GetExecutionContext(ctx).EnrichAttributes(base)
	})
	o := &Orchestrator{
		model:       model,
		tools:       tools,
		maxSteps:    DefaultMaxSteps,
		concurrency: 1,
		metrics:     m,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return o, nil
}

// Result summarizes a finished session.
type Result struct {
	Outcome     agenttrace.Outcome
	Steps       int
	Text        string
	Invocations []*agenttrace.ToolInvocation
	Messages    []executor.Message
}

// session is the state of one Run.
type session struct {
	*Orchestrator
	trace    *agenttrace.Trace
	emit     func(Frame)
	sequence int
	result   Result
}

// Run drives the conversation in history until the model stops requesting
// tools, the step budget runs out, ctx is cancelled or the model fails.
// The stream always ends with one terminal frame when emit is still
// accepting frames. The returned error is non-nil for the cancelled and
// error outcomes.
func (o *Orchestrator) Run(ctx context.Context, history []executor.Message, emitter Emitter) (res Result, err error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	trace := agenttrace.StartTrace(ctx, o.model.Name())
	ctx = trace.Context()
	log := clog.FromContext(ctx).With("session_id", trace.ID).With("model", o.model.Name())
	ctx = clog.WithLogger(ctx, log)

	s := &session{
		Orchestrator: o,
		trace:        trace,
		emit: func(f Frame) {
			if err := emitter.Emit(f); err != nil {
				cancel(fmt.Errorf("emitting frame: %w", err))
			}
		},
		result: Result{Messages: append([]executor.Message(nil), history...)},
	}
	defer func() {
		trace.Complete(s.result.Outcome, err)
		o.metrics.RecordSession(ctx, o.model.Name(), string(s.result.Outcome))
		log.With("outcome", string(s.result.Outcome)).With("steps", s.result.Steps).Info("Session finished")
		res = s.result
	}()

	for budget := o.maxSteps; budget > 0; budget-- {
		if err := context.Cause(ctx); err != nil {
			return s.cancelled(err)
		}

		turn, err := o.model.Stream(ctx, executor.Request{
			System:   o.system,
			Messages: s.result.Messages,
			Tools:    o.tools,
		}, func(delta string) {
			s.emit(Frame{Type: FrameTextDelta, Text: delta})
		})
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return s.cancelled(cause)
			}
			return s.fail(ctx, err)
		}

		s.result.Steps++
		trace.RecordStep()
		o.metrics.RecordStep(ctx, o.model.Name())
		if turn.InputTokens > 0 || turn.OutputTokens > 0 {
			trace.RecordTokenUsage(turn.InputTokens, turn.OutputTokens)
			o.metrics.RecordTokens(ctx, o.model.Name(), turn.InputTokens, turn.OutputTokens)
		}
		s.result.Text = turn.Text
		s.result.Messages = append(s.result.Messages, turn.Message())

		if len(turn.ToolCalls) == 0 {
			s.result.Outcome = agenttrace.OutcomeDone
			s.emit(Frame{Type: FrameDone, Steps: s.result.Steps})
			return s.result, nil
		}

		if err := context.Cause(ctx); err != nil {
			return s.cancelled(err)
		}
		results := s.dispatch(ctx, turn.ToolCalls)
		s.result.Messages = append(s.result.Messages, executor.Message{Role: executor.RoleUser, ToolResults: results})
		if err := fatal(s.result.Invocations); err != nil {
			return s.fail(ctx, err)
		}
	}

	log.With("max_steps", o.maxSteps).Warn("Step budget exhausted")
	s.result.Outcome = agenttrace.OutcomeBudgetExhausted
	s.emit(Frame{Type: FrameBudgetExhausted, Steps: s.result.Steps})
	return s.result, nil
}

func (s *session) cancelled(cause error) (Result, error) {
	s.result.Outcome = agenttrace.OutcomeCancelled
	s.emit(Frame{Type: FrameFatal, Steps: s.result.Steps, Error: &FrameError{Kind: "cancelled", Message: "the agent session was cancelled"}})
	if errors.Is(cause, context.DeadlineExceeded) {
		return s.result, agenterr.New(agenterr.KindTimeout, "session", cause)
	}
	return s.result, cause
}

// fail ends the session on a model or fatal tool error. Detail goes to
// the log, never to the stream.
func (s *session) fail(ctx context.Context, err error) (Result, error) {
	clog.FromContext(ctx).With("error", err.Error()).Error("Agent session failed")
	s.result.Outcome = agenttrace.OutcomeError
	s.emit(Frame{Type: FrameFatal, Steps: s.result.Steps, Error: &FrameError{Kind: string(agenterr.KindOf(err)), Message: genericErrorMessage}})
	return s.result, err
}

// fatal returns the first invocation error that must end the session.
func fatal(invocations []*agenttrace.ToolInvocation) error {
	for _, inv := range invocations {
		if err := inv.Err(); err != nil && agenterr.IsFatal(err) {
			return err
		}
	}
	return nil
}
