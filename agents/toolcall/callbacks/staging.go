/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package callbacks

import "context"

// EditOperation replaces OldText with NewText.
type EditOperation struct {
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// StageRequest is a proposed change to one file.
type StageRequest struct {
	Path        string
	Operation   string // "create", "update" or "delete"
	Content     *string
	Description string
	// EditMode is "full" (Content replaces the file) or "incremental"
	// (Edits are applied to the current content).
	EditMode    string
	Edits       []EditOperation
	MatchPolicy string
}

// StagedChange describes a pending change without its content.
type StagedChange struct {
	Path        string `json:"path"`
	Operation   string `json:"operation"`
	Description string `json:"description,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// CommitResult describes a published commit.
type CommitResult struct {
	CommitSHA string `json:"commit_sha"`
	Branch    string `json:"branch"`
	Changes   int    `json:"changes"`
}

// StagingCallbacks accumulate changes and publish them as one commit.
type StagingCallbacks struct {
	// StageChange records a change, replacing any pending change for the same path.
	StageChange func(ctx context.Context, req StageRequest) (StagedChange, error)

	// CommitChanges publishes every pending change to branch (empty for the
	// session's branch) as a single commit.
	CommitChanges func(ctx context.Context, message, branch string) (CommitResult, error)

	// ListStagedChanges returns the pending changes in path order.
	ListStagedChanges func(ctx context.Context) ([]StagedChange, error)
}
