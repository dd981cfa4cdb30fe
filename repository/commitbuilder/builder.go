/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package commitbuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/repository/gitstore"
	"chainguard.dev/repoagent/repository/staging"
	"github.com/chainguard-dev/clog"
)

// DefaultAuthor is recorded on commits when the caller supplies none.
var DefaultAuthor = gitstore.Author{Name: "repoagent[bot]", Email: "repoagent[bot]@users.noreply.github.com"}

// Plan is derived fresh for every commit attempt and never persisted.
type Plan struct {
	Repo            gitstore.Repo
	TargetRef       string
	ParentCommitSHA string
	BaseTreeSHA     string
	Entries         []gitstore.TreeEntry
}

// Request describes one commit.
type Request struct {
	Repo    gitstore.Repo
	Branch  string
	Message string
	// Author overrides the builder's author when non-nil.
	Author *gitstore.Author
}

// Result reports a published commit.
type Result struct {
	CommitSHA string `json:"commit_sha"`
	TreeSHA   string `json:"tree_sha"`
	ParentSHA string `json:"parent_sha"`
	Changes   int    `json:"changes"`
}

// Builder publishes a staging snapshot as exactly one commit.
type Builder struct {
	store           gitstore.ObjectStore
	author          gitstore.Author
	conflictRetries int
	callTimeout     time.Duration
}

// New creates a Builder over store.
func New(store gitstore.ObjectStore, opts ...Option) (*Builder, error) {
	if store == nil {
		return nil, agenterr.Newf(agenterr.KindConfiguration, "commitbuilder", "object store is required")
	}
	b := &Builder{
		store:       store,
		author:      DefaultAuthor,
		callTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	return b, nil
}

// Commit publishes the current contents of set to req.Branch. The branch
// only moves if it still points at the parent the commit was built on.
// On success the committed entries are discarded from set.
func (b *Builder) Commit(ctx context.Context, set *staging.Set, req Request) (Result, error) {
	if req.Message == "" {
		return Result{}, agenterr.Validation("commit message is required")
	}
	if req.Branch == "" {
		return Result{}, agenterr.Validation("target branch is required")
	}
	snap := set.Snapshot()
	if snap.Empty() {
		return Result{}, agenterr.Validation("no staged changes to commit")
	}

	author := b.author
	if req.Author != nil {
		author = *req.Author
	}
	log := clog.FromContext(ctx).With("repo", req.Repo.String()).With("branch", req.Branch)

	for attempt := 0; ; attempt++ {
		res, err := b.commitOnce(ctx, snap, req, author)
		if err == nil {
			set.Discard(snap)
			log.With("commit", res.CommitSHA).With("changes", res.Changes).Info("Published commit")
			return res, nil
		}
		if !errors.Is(err, agenterr.ErrCommitConflict) || attempt >= b.conflictRetries {
			return Result{}, err
		}
		log.With("attempt", attempt+1).With("error", err.Error()).Warn("Branch moved during commit, rebuilding")
	}
}

// Prepare resolves the branch and creates blobs for every staged change.
// Nothing it creates is reachable from a ref.
func (b *Builder) Prepare(ctx context.Context, snap staging.Snapshot, repo gitstore.Repo, branch string) (Plan, error) {
	parent, err := call(ctx, b.callTimeout, "resolve_ref", func(ctx context.Context) (string, error) {
		return b.store.ResolveRef(ctx, repo, branch)
	})
	if err != nil {
		return Plan{}, err
	}
	commit, err := call(ctx, b.callTimeout, "get_commit", func(ctx context.Context) (gitstore.Commit, error) {
		return b.store.GetCommit(ctx, repo, parent)
	})
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Repo:            repo,
		TargetRef:       branch,
		ParentCommitSHA: parent,
		BaseTreeSHA:     commit.TreeSHA,
		Entries:         make([]gitstore.TreeEntry, 0, len(snap.Changes)),
	}
	for _, c := range snap.Changes {
		if c.Operation == staging.OperationDelete {
			plan.Entries = append(plan.Entries, gitstore.TreeEntry{Path: c.Path, Mode: gitstore.FileMode})
			continue
		}
		sha, err := call(ctx, b.callTimeout, "create_blob", func(ctx context.Context) (string, error) {
			return b.store.CreateBlob(ctx, repo, []byte(*c.Content))
		})
		if err != nil {
			return Plan{}, fmt.Errorf("creating blob for %s: %w", c.Path, err)
		}
		plan.Entries = append(plan.Entries, gitstore.TreeEntry{Path: c.Path, Mode: gitstore.FileMode, SHA: sha})
	}
	return plan, nil
}

func (b *Builder) commitOnce(ctx context.Context, snap staging.Snapshot, req Request, author gitstore.Author) (Result, error) {
	plan, err := b.Prepare(ctx, snap, req.Repo, req.Branch)
	if err != nil {
		return Result{}, err
	}

	tree, err := call(ctx, b.callTimeout, "create_tree", func(ctx context.Context) (string, error) {
		return b.store.CreateTree(ctx, plan.Repo, plan.BaseTreeSHA, plan.Entries)
	})
	if err != nil {
		return Result{}, err
	}
	sha, err := call(ctx, b.callTimeout, "create_commit", func(ctx context.Context) (string, error) {
		return b.store.CreateCommit(ctx, plan.Repo, req.Message, tree, []string{plan.ParentCommitSHA}, author)
	})
	if err != nil {
		return Result{}, err
	}
	if _, err := call(ctx, b.callTimeout, "update_ref", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.store.UpdateRef(ctx, plan.Repo, plan.TargetRef, plan.ParentCommitSHA, sha)
	}); err != nil {
		return Result{}, err
	}

	return Result{
		CommitSHA: sha,
		TreeSHA:   tree,
		ParentSHA: plan.ParentCommitSHA,
		Changes:   len(plan.Entries),
	}, nil
}

// call runs fn under its own timeout and classifies a deadline as a timeout.
func call[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}
	var ae *agenterr.Error
	if !errors.As(err, &ae) && errors.Is(err, context.DeadlineExceeded) {
		err = agenterr.New(agenterr.KindTimeout, op, err)
	}
	return v, fmt.Errorf("%s: %w", op, err)
}
