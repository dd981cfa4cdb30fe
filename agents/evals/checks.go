/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"fmt"
	"maps"
	"slices"

	"chainguard.dev/repoagent/agents/agenttrace"
)

// ExactToolCalls fails unless the session made exactly n tool calls.
func ExactToolCalls(n int) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if got := len(trace.Invocations); got != n {
			o.Fail(fmt.Sprintf("tool call count: got = %d, wanted = %d", got, n))
		}
	}
}

// MaximumNToolCalls fails when the session made more than n tool calls.
func MaximumNToolCalls(n int) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if got := len(trace.Invocations); got > n {
			o.Fail(fmt.Sprintf("tool call count: got = %d, wanted <= %d", got, n))
		}
	}
}

// OnlyToolCalls fails when the session used a tool outside names.
func OnlyToolCalls(names ...string) Check {
	allowed := make(map[string]struct{}, len(names))
	for _, name := range names {
		allowed[name] = struct{}{}
	}
	return func(o Observer, trace *agenttrace.Trace) {
		for _, inv := range trace.Invocations {
			if _, ok := allowed[inv.Name]; !ok {
				o.Fail(fmt.Sprintf("unexpected tool call %q, only allowed: %v", inv.Name, names))
				return
			}
		}
	}
}

// RequiredToolCalls fails unless every tool in names was called.
func RequiredToolCalls(names ...string) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		required := make(map[string]struct{}, len(names))
		for _, name := range names {
			required[name] = struct{}{}
		}
		for _, inv := range trace.Invocations {
			delete(required, inv.Name)
		}
		if len(required) > 0 {
			o.Fail(fmt.Sprintf("missing required tool calls: %v", slices.Sorted(maps.Keys(required))))
		}
	}
}

// NoToolErrors fails on the first failed tool invocation.
func NoToolErrors() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		for _, inv := range trace.Invocations {
			if inv.Failed() {
				o.Fail(fmt.Sprintf("tool call %s error: got = %s, wanted = none", inv.Name, inv.ErrorKind))
				return
			}
		}
	}
}

// OutcomeIs fails unless the session ended with one of outcomes.
func OutcomeIs(outcomes ...agenttrace.Outcome) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if !slices.Contains(outcomes, trace.Outcome) {
			o.Fail(fmt.Sprintf("outcome: got = %s, wanted one of %v", trace.Outcome, outcomes))
		}
	}
}

// StagedChangesCommitted fails when a change was staged after the last
// successful commit, leaving work that never reached the repository.
func StagedChangesCommitted() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		invocations := slices.Clone(trace.Invocations)
		slices.SortFunc(invocations, func(a, b *agenttrace.ToolInvocation) int { return a.Sequence - b.Sequence })

		pending := 0
		for _, inv := range invocations {
			if inv.Failed() {
				continue
			}
			switch inv.Name {
			case "stage_change":
				pending++
			case "commit_changes":
				pending = 0
			}
		}
		if pending > 0 {
			o.Fail(fmt.Sprintf("staged changes left uncommitted: %d", pending))
		}
	}
}

// SessionChecks are the checks run against every production session.
func SessionChecks() map[string]Check {
	return map[string]Check{
		"completed":                OutcomeIs(agenttrace.OutcomeDone),
		"no_tool_errors":           NoToolErrors(),
		"staged_changes_committed": StagedChangesCommitted(),
	}
}
