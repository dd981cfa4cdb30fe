/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeexecutor implements executor.Model with the Anthropic SDK.
//
// Each Stream call sends the whole conversation, forwards text deltas as
// they arrive and returns the accumulated turn. Rate limit and overload
// errors are retried with backoff until the first delta has been emitted.
//
//	client := anthropic.NewClient(
//	    vertex.WithGoogleAuth(ctx, region, projectID),
//	)
//	model, err := claudeexecutor.New(client,
//	    claudeexecutor.WithModel("claude-sonnet-4@20250514"),
//	    claudeexecutor.WithMaxTokens(16000),
//	)
//	if err != nil {
//	    return err
//	}
//	turn, err := model.Stream(ctx, executor.Request{
//	    System:   system,
//	    Messages: []executor.Message{executor.UserText("Fix the typo in README.md")},
//	    Tools:    tools,
//	}, func(delta string) { fmt.Print(delta) })
package claudeexecutor
