/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/toolcall/callbacks"
	"chainguard.dev/repoagent/repository/commitbuilder"
	"chainguard.dev/repoagent/repository/editengine"
	"chainguard.dev/repoagent/repository/staging"
	"github.com/chainguard-dev/clog"
)

const (
	editModeFull        = "full"
	editModeIncremental = "incremental"
)

func (s *Session) stageChange(ctx context.Context, req callbacks.StageRequest) (callbacks.StagedChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := staging.NormalizePath(req.Path)
	if err != nil {
		return callbacks.StagedChange{}, err
	}

	mode := req.EditMode
	if mode == "" {
		mode = editModeFull
		if len(req.Edits) > 0 {
			mode = editModeIncremental
		}
	}

	var change staging.Change
	switch mode {
	case editModeFull:
		op, err := staging.ParseOperation(req.Operation)
		if err != nil {
			return callbacks.StagedChange{}, err
		}
		change = staging.Change{Path: path, Operation: op, Content: req.Content, Description: req.Description}
	case editModeIncremental:
		if change, err = s.incremental(ctx, path, req); err != nil {
			return callbacks.StagedChange{}, err
		}
	default:
		return callbacks.StagedChange{}, agenterr.Validation("unknown edit_mode %q (want full or incremental)", req.EditMode)
	}

	staged, err := s.staged.Stage(change)
	if err != nil {
		return callbacks.StagedChange{}, err
	}
	clog.FromContext(ctx).With("path", staged.Path).With("operation", string(staged.Operation)).Info("Staged change")
	return stagedChange(staged), nil
}

// incremental applies the edits to the pending content of path, or to the
// branch's content when nothing is staged for it.
func (s *Session) incremental(ctx context.Context, path string, req callbacks.StageRequest) (staging.Change, error) {
	if len(req.Edits) == 0 {
		return staging.Change{}, agenterr.Validation("incremental edit of %s requires edit_operations", path)
	}
	if req.Operation != "" {
		if op, err := staging.ParseOperation(req.Operation); err != nil {
			return staging.Change{}, err
		} else if op == staging.OperationDelete {
			return staging.Change{}, agenterr.Validation("incremental edit of %s cannot delete", path)
		}
	}
	policy := s.cfg.MatchPolicy
	if req.MatchPolicy != "" {
		p, err := editengine.ParsePolicy(req.MatchPolicy)
		if err != nil {
			return staging.Change{}, err
		}
		policy = p
	}

	op := staging.OperationUpdate
	var base string
	if pending, ok := s.staged.Get(path); ok {
		if pending.Operation == staging.OperationDelete {
			return staging.Change{}, agenterr.Newf(agenterr.KindPathNotFound, "stage_change", "%s is staged for deletion", path)
		}
		base = *pending.Content
		op = pending.Operation
	} else {
		content, err := s.readFile(ctx, path, "")
		if err != nil {
			return staging.Change{}, err
		}
		base = content
	}

	ops := make([]editengine.Operation, 0, len(req.Edits))
	for _, e := range req.Edits {
		ops = append(ops, editengine.Operation{OldText: e.OldText, NewText: e.NewText})
	}
	edited, err := editengine.Apply(base, ops, policy)
	if err != nil {
		return staging.Change{}, err
	}
	return staging.Change{Path: path, Operation: op, Content: &edited, Description: req.Description}, nil
}

// commitChanges publishes the staging set on a context detached from the
// caller's cancellation and bounded by the commit timeout.
func (s *Session) commitChanges(ctx context.Context, message, branch string) (callbacks.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()

	target := s.branchOr(branch)
	res, err := s.cfg.Builder.Commit(ctx, s.staged, commitbuilder.Request{
		Repo:    s.cfg.Repo,
		Branch:  target,
		Message: message,
	})
	if err != nil {
		return callbacks.CommitResult{}, err
	}
	return callbacks.CommitResult{CommitSHA: res.CommitSHA, Branch: target, Changes: res.Changes}, nil
}

func (s *Session) listStagedChanges(context.Context) ([]callbacks.StagedChange, error) {
	snap := s.staged.Snapshot()
	out := make([]callbacks.StagedChange, 0, len(snap.Changes))
	for _, c := range snap.Changes {
		out = append(out, stagedChange(c))
	}
	return out, nil
}

func stagedChange(c staging.Change) callbacks.StagedChange {
	sc := callbacks.StagedChange{Path: c.Path, Operation: string(c.Operation), Description: c.Description}
	if c.Content != nil {
		sc.Size = len(*c.Content)
	}
	return sc
}
