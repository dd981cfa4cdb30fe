/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitstore

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/repoagent/agents/agenterr"
)

// Repo identifies a repository on the host.
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses an "owner/name" identifier.
func ParseRepo(s string) (Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, agenterr.Validation("repository must be owner/name, got %q", s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

func (r Repo) String() string { return r.Owner + "/" + r.Name }

// FileMode is the git mode used for regular file entries.
const FileMode = "100644"

// TreeEntry is one path in a tree layered on a base tree.
// An empty SHA removes the path from the base tree.
type TreeEntry struct {
	Path string
	Mode string
	SHA  string
}

// Removal reports whether the entry deletes its path.
func (e TreeEntry) Removal() bool { return e.SHA == "" }

// Commit is the subset of a commit object the agent needs.
type Commit struct {
	SHA     string
	TreeSHA string
	Parents []string
	Message string
}

// Author is the identity recorded on commits.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string { return fmt.Sprintf("%s <%s>", a.Name, a.Email) }

// ObjectStore is the low-level object API used to build commits.
type ObjectStore interface {
	// ResolveRef returns the commit SHA a branch points at.
	ResolveRef(ctx context.Context, repo Repo, branch string) (string, error)
	GetCommit(ctx context.Context, repo Repo, sha string) (Commit, error)
	CreateBlob(ctx context.Context, repo Repo, content []byte) (string, error)
	CreateTree(ctx context.Context, repo Repo, baseTree string, entries []TreeEntry) (string, error)
	CreateCommit(ctx context.Context, repo Repo, message, tree string, parents []string, author Author) (string, error)
	// UpdateRef moves branch to sha only if it still points at expected,
	// and never forces. A moved branch yields a commit conflict.
	UpdateRef(ctx context.Context, repo Repo, branch, expected, sha string) error
	CreateRef(ctx context.Context, repo Repo, branch, sha string) error
}

// Entry is one item of a directory listing.
type Entry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size,omitempty"`
}

// ContentReader reads files and directories at a ref.
type ContentReader interface {
	ReadFile(ctx context.Context, repo Repo, ref, path string) (string, error)
	ListFiles(ctx context.Context, repo Repo, ref, dir string) ([]Entry, error)
}

// Match is one code search hit.
type Match struct {
	Path      string   `json:"path"`
	URL       string   `json:"url,omitempty"`
	Fragments []string `json:"fragments,omitempty"`
}

// CodeSearcher searches the default branch of a repository.
type CodeSearcher interface {
	SearchCode(ctx context.Context, repo Repo, query, path, extension string) ([]Match, error)
}

// PullRequest describes a pull request to open.
type PullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// PullRequestRef identifies an opened pull request.
type PullRequestRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// Collaboration covers pull requests and issue comments.
type Collaboration interface {
	CreatePullRequest(ctx context.Context, repo Repo, pr PullRequest) (PullRequestRef, error)
	CreateComment(ctx context.Context, repo Repo, number int, body string) error
}

// RepoInfo exposes repository metadata.
type RepoInfo interface {
	DefaultBranch(ctx context.Context, repo Repo) (string, error)
}

// Store is the full capability set one session works against.
type Store interface {
	ObjectStore
	ContentReader
	CodeSearcher
	Collaboration
	RepoInfo
}
