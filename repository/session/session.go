/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/toolcall/callbacks"
	"chainguard.dev/repoagent/agents/websearch"
	"chainguard.dev/repoagent/repository/commitbuilder"
	"chainguard.dev/repoagent/repository/editengine"
	"chainguard.dev/repoagent/repository/gitstore"
	"chainguard.dev/repoagent/repository/staging"
	"github.com/chainguard-dev/clog"
)

const (
	defaultStoreTimeout  = 30 * time.Second
	defaultCommitTimeout = 2 * time.Minute
)

// Config binds a session to one repository and working branch.
type Config struct {
	Repo   gitstore.Repo
	Branch string
	// DefaultBranch is the base for pull requests. It is looked up on the
	// host when empty.
	DefaultBranch string

	Store   gitstore.Store
	Builder *commitbuilder.Builder
	// Search is optional; without it the session offers no web search.
	Search *websearch.Client

	MatchPolicy   editengine.Policy
	StoreTimeout  time.Duration
	CommitTimeout time.Duration
}

// Session owns the staging set of one agent session and exposes it, along
// with the repository, as tool callbacks.
type Session struct {
	cfg    Config
	staged *staging.Set

	// mu serializes stage_change and commit_changes so an incremental
	// edit reads and stages atomically.
	mu sync.Mutex
}

// New validates cfg and returns a session with an empty staging set.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.Store == nil:
		return nil, agenterr.Newf(agenterr.KindConfiguration, "session", "repository store is required")
	case cfg.Builder == nil:
		return nil, agenterr.Newf(agenterr.KindConfiguration, "session", "commit builder is required")
	case cfg.Repo.Owner == "" || cfg.Repo.Name == "":
		return nil, agenterr.Validation("repository is required")
	case cfg.Branch == "":
		return nil, agenterr.Validation("branch is required")
	}
	if cfg.MatchPolicy == "" {
		cfg.MatchPolicy = editengine.DefaultPolicy
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaultCommitTimeout
	}
	return &Session{cfg: cfg, staged: staging.New()}, nil
}

// Repo returns the bound repository.
func (s *Session) Repo() gitstore.Repo { return s.cfg.Repo }

// Branch returns the working branch.
func (s *Session) Branch() string { return s.cfg.Branch }

// Staged returns the session's staging set.
func (s *Session) Staged() *staging.Set { return s.staged }

// RepositoryCallbacks returns the read and collaboration callbacks.
func (s *Session) RepositoryCallbacks() callbacks.RepositoryCallbacks {
	return callbacks.RepositoryCallbacks{
		ReadFile:          s.readFile,
		ListFiles:         s.listFiles,
		SearchCode:        s.searchCode,
		CreateBranch:      s.createBranch,
		CreatePullRequest: s.createPullRequest,
	}
}

// StagingCallbacks returns the stage and commit callbacks.
func (s *Session) StagingCallbacks() callbacks.StagingCallbacks {
	return callbacks.StagingCallbacks{
		StageChange:       s.stageChange,
		CommitChanges:     s.commitChanges,
		ListStagedChanges: s.listStagedChanges,
	}
}

// SearchCallbacks returns the web search callback, or the zero value when
// no search client is configured.
func (s *Session) SearchCallbacks() callbacks.SearchCallbacks {
	if s.cfg.Search == nil {
		return callbacks.SearchCallbacks{}
	}
	return callbacks.SearchCallbacks{WebSearch: s.cfg.Search.SearchText}
}

func (s *Session) branchOr(branch string) string {
	if branch == "" {
		return s.cfg.Branch
	}
	return branch
}

// storeCall bounds one host call by the store timeout.
func storeCall[T any](ctx context.Context, s *Session, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	v, err := fn(ctx)
	var ae *agenterr.Error
	if err != nil && !errors.As(err, &ae) && errors.Is(err, context.DeadlineExceeded) {
		err = agenterr.New(agenterr.KindTimeout, op, err)
	}
	return v, err
}

func (s *Session) readFile(ctx context.Context, path, branch string) (string, error) {
	p, err := staging.NormalizePath(path)
	if err != nil {
		return "", err
	}
	return storeCall(ctx, s, "read_file", func(ctx context.Context) (string, error) {
		return s.cfg.Store.ReadFile(ctx, s.cfg.Repo, s.branchOr(branch), p)
	})
}

func (s *Session) listFiles(ctx context.Context, dir, branch string) ([]callbacks.FileEntry, error) {
	entries, err := storeCall(ctx, s, "list_files", func(ctx context.Context) ([]gitstore.Entry, error) {
		return s.cfg.Store.ListFiles(ctx, s.cfg.Repo, s.branchOr(branch), dir)
	})
	if err != nil {
		return nil, err
	}
	out := make([]callbacks.FileEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, callbacks.FileEntry{Path: e.Path, Type: e.Type, Size: e.Size})
	}
	return out, nil
}

func (s *Session) searchCode(ctx context.Context, query, path, extension string) ([]callbacks.CodeMatch, error) {
	if query == "" {
		return nil, agenterr.Validation("query is required")
	}
	matches, err := storeCall(ctx, s, "search_code", func(ctx context.Context) ([]gitstore.Match, error) {
		return s.cfg.Store.SearchCode(ctx, s.cfg.Repo, query, path, extension)
	})
	if err != nil {
		return nil, err
	}
	out := make([]callbacks.CodeMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, callbacks.CodeMatch{Path: m.Path, URL: m.URL, Fragments: m.Fragments})
	}
	return out, nil
}

func (s *Session) createBranch(ctx context.Context, name, source string) (string, error) {
	if name == "" {
		return "", agenterr.Validation("branch name is required")
	}
	sha, err := storeCall(ctx, s, "resolve_ref", func(ctx context.Context) (string, error) {
		return s.cfg.Store.ResolveRef(ctx, s.cfg.Repo, s.branchOr(source))
	})
	if err != nil {
		return "", err
	}
	if _, err := storeCall(ctx, s, "create_ref", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.cfg.Store.CreateRef(ctx, s.cfg.Repo, name, sha)
	}); err != nil {
		return "", err
	}
	clog.FromContext(ctx).With("branch", name).With("sha", sha).Info("Created branch")
	return sha, nil
}

func (s *Session) createPullRequest(ctx context.Context, title, head, base, body string) (callbacks.PullRequest, error) {
	if title == "" {
		return callbacks.PullRequest{}, agenterr.Validation("title is required")
	}
	head = s.branchOr(head)
	if base == "" {
		var err error
		if base, err = s.defaultBranch(ctx); err != nil {
			return callbacks.PullRequest{}, err
		}
	}
	if head == base {
		return callbacks.PullRequest{}, agenterr.Validation("head and base are both %q", head)
	}
	ref, err := storeCall(ctx, s, "create_pull_request", func(ctx context.Context) (gitstore.PullRequestRef, error) {
		return s.cfg.Store.CreatePullRequest(ctx, s.cfg.Repo, gitstore.PullRequest{Title: title, Head: head, Base: base, Body: body})
	})
	if err != nil {
		return callbacks.PullRequest{}, err
	}
	return callbacks.PullRequest{Number: ref.Number, URL: ref.URL}, nil
}

func (s *Session) defaultBranch(ctx context.Context) (string, error) {
	if s.cfg.DefaultBranch != "" {
		return s.cfg.DefaultBranch, nil
	}
	branch, err := storeCall(ctx, s, "default_branch", func(ctx context.Context) (string, error) {
		return s.cfg.Store.DefaultBranch(ctx, s.cfg.Repo)
	})
	if err != nil {
		return "", fmt.Errorf("looking up default branch: %w", err)
	}
	return branch, nil
}
