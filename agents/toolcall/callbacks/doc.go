/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package callbacks provides the callback types behind the agent's tools.

It has no model SDK dependencies, so packages that implement the callbacks
(such as repository/session) do not pull in anthropic-sdk-go or genai.

	cb := callbacks.StagingCallbacks{
		StageChange: func(ctx context.Context, req callbacks.StageRequest) (callbacks.StagedChange, error) {
			// validate and record the change
		},
		CommitChanges: func(ctx context.Context, message, branch string) (callbacks.CommitResult, error) {
			// publish pending changes as one commit
		},
	}

A nil callback means the corresponding tool is not offered to the model.
*/
package callbacks
