/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/toolcall"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// dispatch resolves every call of one step and returns the results in call
// order. Tool-call frames are emitted before a handler runs and result
// frames in call order once resolved.
func (s *session) dispatch(ctx context.Context, calls []toolcall.ToolCall) []executor.ToolResult {
	invocations := make([]*agenttrace.ToolInvocation, len(calls))
	for i, call := range calls {
		invocations[i] = s.trace.StartToolCall(call.ID, call.Name, call.Args, s.sequence)
		s.sequence++
	}

	if s.concurrency <= 1 || len(calls) == 1 {
		for i, call := range calls {
			s.emit(callFrame(invocations[i]))
			s.invoke(ctx, call, invocations[i])
			s.emit(resultFrame(invocations[i]))
		}
	} else {
		for _, inv := range invocations {
			s.emit(callFrame(inv))
		}
		s.invokeConcurrently(ctx, calls, invocations)
		for _, inv := range invocations {
			s.emit(resultFrame(inv))
		}
	}

	results := make([]executor.ToolResult, 0, len(calls))
	for _, inv := range invocations {
		results = append(results, toolResult(inv))
	}
	s.result.Invocations = append(s.result.Invocations, invocations...)
	return results
}

// invokeConcurrently runs calls up to the concurrency limit. A serial tool
// waits for every call before it and holds back every call after it.
func (s *session) invokeConcurrently(ctx context.Context, calls []toolcall.ToolCall, invocations []*agenttrace.ToolInvocation) {
	var g *errgroup.Group
	wait := func() {
		if g != nil {
			_ = g.Wait()
			g = nil
		}
	}
	for i, call := range calls {
		if s.tools[call.Name].Serial {
			wait()
			s.invoke(ctx, call, invocations[i])
			continue
		}
		if g == nil {
			g = new(errgroup.Group)
			g.SetLimit(s.concurrency)
		}
		g.Go(func() error {
			s.invoke(ctx, call, invocations[i])
			return nil
		})
	}
	wait()
}

// invoke runs one handler. Failures, including panics, become failed
// invocations.
func (s *session) invoke(ctx context.Context, call toolcall.ToolCall, inv *agenttrace.ToolInvocation) {
	log := clog.FromContext(ctx).With("tool", call.Name).With("id", call.ID)
	log.Info("Executing tool call")

	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
			}
		}()
		tool, ok := s.tools[call.Name]
		if !ok || tool.Handler == nil {
			return nil, agenterr.Newf(agenterr.KindValidation, call.Name, "unknown tool %q", call.Name)
		}
		return tool.Handler(ctx, call)
	}()
	inv.Complete(result, err)

	if err != nil {
		log.With("error", err.Error()).With("kind", string(inv.ErrorKind)).Warn("Tool call failed")
	}
	s.metrics.RecordToolCall(ctx, s.model.Name(), call.Name, string(inv.ErrorKind))
}

func callFrame(inv *agenttrace.ToolInvocation) Frame {
	seq := inv.Sequence
	return Frame{Type: FrameToolCall, ID: inv.ID, Name: inv.Name, Arguments: inv.Arguments, Sequence: &seq}
}

func resultFrame(inv *agenttrace.ToolInvocation) Frame {
	seq := inv.Sequence
	f := Frame{Type: FrameToolResult, ID: inv.ID, Name: inv.Name, Sequence: &seq}
	if inv.Failed() {
		f.Error = &FrameError{Kind: string(inv.ErrorKind), Message: inv.Error, Index: editIndex(inv)}
	} else {
		f.Result = inv.Result
	}
	return f
}

// toolResult serializes an invocation for the model.
func toolResult(inv *agenttrace.ToolInvocation) executor.ToolResult {
	out := executor.ToolResult{CallID: inv.ID, Name: inv.Name}
	var payload any = inv.Result
	if inv.Failed() {
		out.IsError = true
		e := map[string]any{"kind": string(inv.ErrorKind), "message": inv.Error}
		if idx := editIndex(inv); idx != nil {
			e["index"] = *idx
		}
		payload = map[string]any{"error": e}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		out.IsError = true
		b, _ = json.Marshal(map[string]any{"error": map[string]any{"kind": string(agenterr.KindUnknown), "message": "result could not be serialized"}})
	}
	out.Content = string(b)
	return out
}

func editIndex(inv *agenttrace.ToolInvocation) *int {
	if inv.ErrorKind != agenterr.KindEditConflict {
		return nil
	}
	var ae *agenterr.Error
	if !errors.As(inv.Err(), &ae) {
		return nil
	}
	idx := ae.Index
	return &idx
}
