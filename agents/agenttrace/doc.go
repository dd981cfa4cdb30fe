/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenttrace records agent sessions and their tool invocations.

Each session gets a Trace backed by an OpenTelemetry span, and each tool
call a ToolInvocation with a child span. Completed traces are handed to
the Tracer attached to the context, which by default logs them with clog.
Multi fans a trace out to several tracers.

	ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
		SessionID:  id,
		Repository: "octo/cat",
		Branch:     "main",
		Trigger:    "api",
	})
	trace := agenttrace.StartTrace(ctx, "claude-sonnet-4@20250514")
	inv := trace.StartToolCall("toolu_1", "read_file", args, 0)
	inv.Complete(content, err)
	trace.Complete(agenttrace.OutcomeDone, nil)
*/
package agenttrace
