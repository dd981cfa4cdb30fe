/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package callbacks

import "context"

// FileEntry is one item of a directory listing.
type FileEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
	Size int    `json:"size,omitempty"`
}

// CodeMatch is one search hit.
type CodeMatch struct {
	Path      string   `json:"path"`
	URL       string   `json:"url,omitempty"`
	Fragments []string `json:"fragments,omitempty"`
}

// PullRequest is the number and address of an opened pull request.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// RepositoryCallbacks reads from and collaborates on the remote repository.
// An empty branch means the session's branch.
type RepositoryCallbacks struct {
	// ReadFile returns the content of path on branch.
	ReadFile func(ctx context.Context, path, branch string) (string, error)

	// ListFiles lists the entries directly under dir on branch.
	ListFiles func(ctx context.Context, dir, branch string) ([]FileEntry, error)

	// SearchCode searches the default branch. path and extension narrow the search.
	SearchCode func(ctx context.Context, query, path, extension string) ([]CodeMatch, error)

	// CreateBranch creates name at the head of source and returns the commit it points at.
	CreateBranch func(ctx context.Context, name, source string) (string, error)

	// CreatePullRequest opens a pull request from head into base.
	CreatePullRequest func(ctx context.Context, title, head, base, body string) (PullRequest, error)
}
