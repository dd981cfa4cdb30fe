/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"context"
	"errors"
	"testing"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/agenttrace"
	"github.com/google/go-cmp/cmp"
)

type call struct {
	name string
	err  error
}

func newTrace(outcome agenttrace.Outcome, calls ...call) *agenttrace.Trace {
	var done *agenttrace.Trace
	ctx := agenttrace.WithTracer(context.Background(), agenttrace.ByCode(func(tr *agenttrace.Trace) { done = tr }))
	trace := agenttrace.StartTrace(ctx, "test-model")
	for i, c := range calls {
		trace.StartToolCall("id", c.name, nil, i).Complete("ok", c.err)
	}
	trace.Complete(outcome, nil)
	return done
}

func TestChecks(t *testing.T) {
	conflict := agenterr.New(agenterr.KindCommitConflict, "commit", errors.New("moved"))

	tests := []struct {
		name     string
		check    Check
		trace    *agenttrace.Trace
		wantFail bool
	}{{
		name:  "exact match",
		check: ExactToolCalls(2),
		trace: newTrace(agenttrace.OutcomeDone, call{name: "read_file"}, call{name: "list_files"}),
	}, {
		name:     "exact mismatch",
		check:    ExactToolCalls(1),
		trace:    newTrace(agenttrace.OutcomeDone, call{name: "read_file"}, call{name: "list_files"}),
		wantFail: true,
	}, {
		name:  "maximum within",
		check: MaximumNToolCalls(3),
		trace: newTrace(agenttrace.OutcomeDone, call{name: "read_file"}),
	}, {
		name:     "maximum exceeded",
		check:    MaximumNToolCalls(0),
		trace:    newTrace(agenttrace.OutcomeDone, call{name: "read_file"}),
		wantFail: true,
	}, {
		name:  "only allowed tools",
		check: OnlyToolCalls("read_file", "list_files"),
		trace: newTrace(agenttrace.OutcomeDone, call{name: "read_file"}),
	}, {
		name:     "disallowed tool",
		check:    OnlyToolCalls("read_file"),
		trace:    newTrace(agenttrace.OutcomeDone, call{name: "commit_changes"}),
		wantFail: true,
	}, {
		name:  "required present",
		check: RequiredToolCalls("read_file"),
		trace: newTrace(agenttrace.OutcomeDone, call{name: "list_files"}, call{name: "read_file"}),
	}, {
		name:     "required missing",
		check:    RequiredToolCalls("read_file", "commit_changes"),
		trace:    newTrace(agenttrace.OutcomeDone, call{name: "read_file"}),
		wantFail: true,
	}, {
		name:  "no tool errors",
		check: NoToolErrors(),
		trace: newTrace(agenttrace.OutcomeDone, call{name: "read_file"}),
	}, {
		name:     "tool error",
		check:    NoToolErrors(),
		trace:    newTrace(agenttrace.OutcomeDone, call{name: "commit_changes", err: conflict}),
		wantFail: true,
	}, {
		name:  "outcome matches",
		check: OutcomeIs(agenttrace.OutcomeDone, agenttrace.OutcomeBudgetExhausted),
		trace: newTrace(agenttrace.OutcomeBudgetExhausted),
	}, {
		name:     "outcome differs",
		check:    OutcomeIs(agenttrace.OutcomeDone),
		trace:    newTrace(agenttrace.OutcomeCancelled),
		wantFail: true,
	}, {
		name:  "staged then committed",
		check: StagedChangesCommitted(),
		trace: newTrace(agenttrace.OutcomeDone, call{name: "stage_change"}, call{name: "commit_changes"}),
	}, {
		name:     "staged after commit",
		check:    StagedChangesCommitted(),
		trace:    newTrace(agenttrace.OutcomeDone, call{name: "stage_change"}, call{name: "commit_changes"}, call{name: "stage_change"}),
		wantFail: true,
	}, {
		name:     "commit failed",
		check:    StagedChangesCommitted(),
		trace:    newTrace(agenttrace.OutcomeDone, call{name: "stage_change"}, call{name: "commit_changes", err: conflict}),
		wantFail: true,
	}, {
		name:  "no changes staged",
		check: StagedChangesCommitted(),
		trace: newTrace(agenttrace.OutcomeDone, call{name: "read_file"}),
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewResultCollector(nil)
			Inject(rc, tt.check)(tt.trace)

			if got := rc.Total(); got != 1 {
				t.Errorf("total: got = %d, wanted = 1", got)
			}
			if got := len(rc.Failures()) > 0; got != tt.wantFail {
				t.Errorf("failed: got = %v (%v), wanted = %v", got, rc.Failures(), tt.wantFail)
			}
		})
	}
}

func TestBuildTracer(t *testing.T) {
	collectors := map[string]*ResultCollector{}
	observer := NewNamespacedObserver(func(name string) *ResultCollector {
		rc := NewResultCollector(nil)
		collectors[name] = rc
		return rc
	})

	tracer := BuildTracer(observer, SessionChecks())
	ctx := agenttrace.WithTracer(context.Background(), tracer)
	trace := agenttrace.StartTrace(ctx, "test-model")
	trace.StartToolCall("t1", "stage_change", nil, 0).Complete("staged", nil)
	trace.Complete(agenttrace.OutcomeCancelled, context.Canceled)

	var names []string
	failed := map[string]int{}
	observer.Walk(func(name string, rc *ResultCollector) {
		names = append(names, name)
		failed[name] = len(rc.Failures())
	})

	wantNames := []string{"/", "/completed", "/no_tool_errors", "/staged_changes_committed"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Errorf("namespaces (-want, +got): %s", diff)
	}
	wantFailed := map[string]int{
		"/":                         0,
		"/completed":                1,
		"/no_tool_errors":           0,
		"/staged_changes_committed": 1,
	}
	if diff := cmp.Diff(wantFailed, failed); diff != "" {
		t.Errorf("failures (-want, +got): %s", diff)
	}
	if got := collectors["/completed"].Total(); got != 1 {
		t.Errorf("completed total: got = %d, wanted = 1", got)
	}
}

func TestResultCollectorForwards(t *testing.T) {
	inner := NewResultCollector(nil)
	outer := NewResultCollector(inner)

	outer.Increment()
	outer.Fail("broken")
	outer.Grade(0.5, "half")

	if got := inner.Total(); got != 1 {
		t.Errorf("inner total: got = %d, wanted = 1", got)
	}
	if got := inner.Failures(); len(got) != 0 {
		t.Errorf("inner failures: got = %v, wanted = none", got)
	}
	if diff := cmp.Diff([]Grade{{Score: 0.5, Reasoning: "half"}}, inner.Grades()); diff != "" {
		t.Errorf("inner grades (-want, +got): %s", diff)
	}
	if diff := cmp.Diff([]string{"broken"}, outer.Failures()); diff != "" {
		t.Errorf("outer failures (-want, +got): %s", diff)
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver("/test")
	m.Increment()
	m.Increment()
	m.Fail("x")
	m.Grade(0.25, "")
	m.Log("ignored")

	if got := m.Total(); got != 2 {
		t.Errorf("total: got = %d, wanted = 2", got)
	}
}
