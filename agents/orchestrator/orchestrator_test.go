/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"chainguard.dev/repoagent/agents/executor"
	"chainguard.dev/repoagent/agents/toolcall"
	"github.com/google/go-cmp/cmp"
)

// scriptedModel returns the turn produced by next for each step.
type scriptedModel struct {
	mu       sync.Mutex
	requests []executor.Request
	next     func(step int, req executor.Request) (executor.Turn, error)
}

func (m *scriptedModel) Name() string { return "scripted-model" }

func (m *scriptedModel) Stream(_ context.Context, req executor.Request, onText executor.TextFunc) (executor.Turn, error) {
	m.mu.Lock()
	step := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	turn, err := m.next(step, req)
	if err != nil {
		return executor.Turn{}, err
	}
	if turn.Text != "" {
		onText(turn.Text)
	}
	return turn, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func callTurn(step int, names ...string) executor.Turn {
	turn := executor.Turn{Text: fmt.Sprintf("step %d", step)}
	for i, name := range names {
		turn.ToolCalls = append(turn.ToolCalls, toolcall.ToolCall{
			ID:   fmt.Sprintf("call-%d-%d", step, i),
			Name: name,
			Args: map[string]any{"n": float64(i)},
		})
	}
	return turn
}

func echoTool() toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.Definition{Name: "echo"},
		Handler: func(_ context.Context, call toolcall.ToolCall) (any, error) {
			return map[string]any{"echo": call.Args["n"]}, nil
		},
	}
}

func frameTypes(frames []Frame) []FrameType {
	out := make([]FrameType, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

func TestBudgetExhausted(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		return callTurn(step, "echo"), nil
	}}
	o, err := New(model, map[string]toolcall.Tool{"echo": echoTool()}, WithMaxSteps(3))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	rec := &Recorder{}
	res, err := o.Run(context.Background(), []executor.Message{executor.UserText("go")}, rec)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if got := model.calls(); got != 3 {
		t.Errorf("model calls: got = %d, wanted = 3", got)
	}
	if res.Outcome != agenttrace.OutcomeBudgetExhausted || res.Steps != 3 {
		t.Errorf("result: got = %s after %d steps, wanted = budget-exhausted after 3", res.Outcome, res.Steps)
	}

	frames := rec.Frames()
	step := []FrameType{FrameTextDelta, FrameToolCall, FrameToolResult}
	want := append(append(append(append([]FrameType{}, step...), step...), step...), FrameBudgetExhausted)
	if diff := cmp.Diff(want, frameTypes(frames)); diff != "" {
		t.Errorf("frame types (-want +got):\n%s", diff)
	}

	var resultIDs []string
	for _, f := range frames {
		if f.Type == FrameToolResult {
			resultIDs = append(resultIDs, f.ID)
		}
	}
	if diff := cmp.Diff([]string{"call-0-0", "call-1-0", "call-2-0"}, resultIDs); diff != "" {
		t.Errorf("tool result order (-want +got):\n%s", diff)
	}
	if len(res.Invocations) != 3 {
		t.Errorf("invocations: got = %d, wanted = 3", len(res.Invocations))
	}
}

func TestDone(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		if step == 0 {
			return callTurn(step, "echo"), nil
		}
		return executor.Turn{Text: "All done."}, nil
	}}
	var traces []*agenttrace.Trace
	ctx := agenttrace.WithTracer(context.Background(), agenttrace.ByCode(func(tr *agenttrace.Trace) { traces = append(traces, tr) }))

	o, err := New(model, map[string]toolcall.Tool{"echo": echoTool()})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	rec := &Recorder{}
	res, err := o.Run(ctx, []executor.Message{executor.UserText("go")}, rec)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if res.Outcome != agenttrace.OutcomeDone || res.Steps != 2 || res.Text != "All done." {
		t.Errorf("result: got = %+v", res)
	}
	frames := rec.Frames()
	if last := frames[len(frames)-1]; last.Type != FrameDone || last.Steps != 2 {
		t.Errorf("terminal frame: got = %+v, wanted done after 2 steps", last)
	}
	if len(traces) != 1 || traces[0].Outcome != agenttrace.OutcomeDone {
		t.Errorf("traces: got = %d, wanted one done trace", len(traces))
	}

	// The second request carries the assistant turn and its tool result.
	req := model.requests[1]
	if len(req.Messages) != 3 {
		t.Fatalf("second request messages: got = %d, wanted = 3", len(req.Messages))
	}
	results := req.Messages[2].ToolResults
	if len(results) != 1 || results[0].CallID != "call-0-0" || results[0].IsError {
		t.Errorf("tool results: got = %+v", results)
	}
	if results[0].Content != `{"echo":0}` {
		t.Errorf("tool result content: got = %s, wanted = {\"echo\":0}", results[0].Content)
	}
}

func TestFailedToolDoesNotAbort(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		switch step {
		case 0:
			return callTurn(step, "edit", "missing_tool"), nil
		default:
			return executor.Turn{Text: "Recovered."}, nil
		}
	}}
	tools := map[string]toolcall.Tool{
		"edit": {Handler: func(context.Context, toolcall.ToolCall) (any, error) {
			return nil, agenterr.EditConflict(2, "not found")
		}},
	}
	o, err := New(model, tools)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	rec := &Recorder{}
	res, err := o.Run(context.Background(), []executor.Message{executor.UserText("go")}, rec)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if res.Outcome != agenttrace.OutcomeDone {
		t.Errorf("outcome: got = %s, wanted = done", res.Outcome)
	}

	var failures []*FrameError
	for _, f := range rec.Frames() {
		if f.Type == FrameToolResult {
			failures = append(failures, f.Error)
		}
	}
	if len(failures) != 2 || failures[0] == nil || failures[1] == nil {
		t.Fatalf("failed results: got = %v, wanted 2", failures)
	}
	if failures[0].Kind != string(agenterr.KindEditConflict) || failures[0].Index == nil || *failures[0].Index != 2 {
		t.Errorf("edit failure: got = %+v, wanted edit_conflict at index 2", failures[0])
	}
	if failures[1].Kind != string(agenterr.KindValidation) {
		t.Errorf("unknown tool failure kind: got = %q, wanted = %q", failures[1].Kind, agenterr.KindValidation)
	}

	results := model.requests[1].Messages[2].ToolResults
	if !results[0].IsError || !strings.Contains(results[0].Content, `"edit_conflict"`) || !strings.Contains(results[0].Content, `"index":2`) {
		t.Errorf("model-visible failure: got = %+v", results[0])
	}
}

func TestPanickingTool(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		if step == 0 {
			return callTurn(step, "boom"), nil
		}
		return executor.Turn{}, nil
	}}
	tools := map[string]toolcall.Tool{"boom": {Handler: func(context.Context, toolcall.ToolCall) (any, error) {
		panic("kaboom")
	}}}
	o, err := New(model, tools)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	res, err := o.Run(context.Background(), nil, &Recorder{})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(res.Invocations) != 1 || !res.Invocations[0].Failed() {
		t.Errorf("invocations: got = %+v, wanted one failure", res.Invocations)
	}
}

func TestModelError(t *testing.T) {
	model := &scriptedModel{next: func(int, executor.Request) (executor.Turn, error) {
		return executor.Turn{}, errors.New("upstream exploded with secret detail")
	}}
	o, err := New(model, nil)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	rec := &Recorder{}
	res, err := o.Run(context.Background(), []executor.Message{executor.UserText("go")}, rec)
	if err == nil {
		t.Fatal("Run() = nil, wanted error")
	}
	if res.Outcome != agenttrace.OutcomeError {
		t.Errorf("outcome: got = %s, wanted = error", res.Outcome)
	}
	frames := rec.Frames()
	if len(frames) != 1 || frames[0].Type != FrameFatal {
		t.Fatalf("frames: got = %v, wanted one error frame", frameTypes(frames))
	}
	if strings.Contains(frames[0].Error.Message, "secret") {
		t.Errorf("error frame leaks detail: %q", frames[0].Error.Message)
	}
}

func TestFatalToolError(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		return callTurn(step, "auth"), nil
	}}
	tools := map[string]toolcall.Tool{"auth": {Handler: func(context.Context, toolcall.ToolCall) (any, error) {
		return nil, agenterr.Newf(agenterr.KindCredentialUnavailable, "token", "exchange failed")
	}}}
	o, err := New(model, tools)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	rec := &Recorder{}
	_, err = o.Run(context.Background(), nil, rec)
	if kind := agenterr.KindOf(err); kind != agenterr.KindCredentialUnavailable {
		t.Errorf("error kind: got = %q, wanted = %q", kind, agenterr.KindCredentialUnavailable)
	}
	if got := model.calls(); got != 1 {
		t.Errorf("model calls: got = %d, wanted = 1", got)
	}
	frames := rec.Frames()
	if last := frames[len(frames)-1]; last.Type != FrameFatal {
		t.Errorf("terminal frame: got = %s, wanted = error", last.Type)
	}
}

func TestCancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		return callTurn(step, "cancel"), nil
	}}
	tools := map[string]toolcall.Tool{"cancel": {Handler: func(context.Context, toolcall.ToolCall) (any, error) {
		cancel()
		return "ok", nil
	}}}
	o, err := New(model, tools)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	rec := &Recorder{}
	res, err := o.Run(ctx, nil, rec)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error: got = %v, wanted context.Canceled", err)
	}
	if res.Outcome != agenttrace.OutcomeCancelled {
		t.Errorf("outcome: got = %s, wanted = cancelled", res.Outcome)
	}
	if got := model.calls(); got != 1 {
		t.Errorf("model calls: got = %d, wanted = 1", got)
	}
	frames := rec.Frames()
	want := []FrameType{FrameTextDelta, FrameToolCall, FrameToolResult, FrameFatal}
	if diff := cmp.Diff(want, frameTypes(frames)); diff != "" {
		t.Errorf("frame types (-want +got):\n%s", diff)
	}
}

func TestEmitterFailureStops(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		return callTurn(step, "echo"), nil
	}}
	o, err := New(model, map[string]toolcall.Tool{"echo": echoTool()})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	gone := errors.New("client disconnected")
	_, err = o.Run(context.Background(), nil, EmitterFunc(func(Frame) error { return gone }))
	if !errors.Is(err, gone) {
		t.Errorf("Run() error: got = %v, wanted %v", err, gone)
	}
	if got := model.calls(); got != 1 {
		t.Errorf("model calls: got = %d, wanted = 1", got)
	}
}

func TestConcurrentToolsKeepCallOrder(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		if step == 0 {
			return callTurn(step, "slow", "slow", "slow"), nil
		}
		return executor.Turn{}, nil
	}}

	// Every handler waits until all three are running, then they finish in
	// reverse call order.
	var started atomic.Int32
	all := make(chan struct{})
	tools := map[string]toolcall.Tool{"slow": {Handler: func(_ context.Context, call toolcall.ToolCall) (any, error) {
		if started.Add(1) == 3 {
			close(all)
		}
		select {
		case <-all:
		case <-time.After(5 * time.Second):
			return nil, errors.New("handlers did not run concurrently")
		}
		n := call.Args["n"].(float64)
		time.Sleep(time.Duration(2-n) * 10 * time.Millisecond)
		return n, nil
	}}}

	o, err := New(model, tools, WithConcurrentTools(3))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	rec := &Recorder{}
	if _, err := o.Run(context.Background(), nil, rec); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	var types []FrameType
	var results []any
	for _, f := range rec.Frames() {
		switch f.Type {
		case FrameToolCall, FrameToolResult:
			types = append(types, f.Type)
			if f.Type == FrameToolResult {
				if f.Error != nil {
					t.Errorf("tool error: %+v", f.Error)
				}
				results = append(results, f.Result)
			}
		}
	}
	wantTypes := []FrameType{FrameToolCall, FrameToolCall, FrameToolCall, FrameToolResult, FrameToolResult, FrameToolResult}
	if diff := cmp.Diff(wantTypes, types); diff != "" {
		t.Errorf("frame types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{float64(0), float64(1), float64(2)}, results); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
}

func TestSerialToolsHoldCallOrder(t *testing.T) {
	model := &scriptedModel{next: func(step int, _ executor.Request) (executor.Turn, error) {
		if step == 0 {
			return callTurn(step, "read", "read", "write", "read"), nil
		}
		return executor.Turn{}, nil
	}}

	var active atomic.Int32
	var written atomic.Bool
	tools := map[string]toolcall.Tool{
		"read": {Handler: func(context.Context, toolcall.ToolCall) (any, error) {
			active.Add(1)
			defer active.Add(-1)
			seen := written.Load()
			time.Sleep(10 * time.Millisecond)
			return seen, nil
		}},
		"write": {Serial: true, Handler: func(context.Context, toolcall.ToolCall) (any, error) {
			if n := active.Load(); n != 0 {
				return nil, fmt.Errorf("%d calls running alongside write", n)
			}
			written.Store(true)
			return "written", nil
		}},
	}

	o, err := New(model, tools, WithConcurrentTools(4))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	rec := &Recorder{}
	if _, err := o.Run(context.Background(), nil, rec); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	var results []any
	for _, f := range rec.Frames() {
		if f.Type != FrameToolResult {
			continue
		}
		if f.Error != nil {
			t.Errorf("tool error: %+v", f.Error)
		}
		results = append(results, f.Result)
	}
	if diff := cmp.Diff([]any{false, false, "written", true}, results); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
}

func TestNDJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewNDJSONWriter(&buf)
	seq := 0
	for _, f := range []Frame{
		{Type: FrameTextDelta, Text: "hi"},
		{Type: FrameToolCall, ID: "t1", Name: "read_file", Arguments: map[string]any{"path": "a"}, Sequence: &seq},
		{Type: FrameDone, Steps: 1},
	} {
		if err := w.Emit(f); err != nil {
			t.Fatalf("Emit() = %v", err)
		}
	}

	var got []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		got = append(got, m)
	}
	want := []map[string]any{
		{"type": "text-delta", "text": "hi"},
		{"type": "tool-call", "id": "t1", "name": "read_file", "arguments": map[string]any{"path": "a"}, "sequence": float64(0)},
		{"type": "done", "steps": float64(1)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil); agenterr.KindOf(err) != agenterr.KindConfiguration {
		t.Errorf("New(nil): got = %v, wanted configuration error", err)
	}
	model := &scriptedModel{}
	if _, err := New(model, nil, WithMaxSteps(0)); err == nil {
		t.Error("WithMaxSteps(0) = nil, wanted error")
	}
	if _, err := New(model, nil, WithConcurrentTools(0)); err == nil {
		t.Error("WithConcurrentTools(0) = nil, wanted error")
	}
}
