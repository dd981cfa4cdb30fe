/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/toolcall/callbacks"
	"chainguard.dev/repoagent/agents/toolcall/params"
	"github.com/chainguard-dev/clog"
)

// Edit modes accepted by stage_change.
const (
	EditModeFull        = "full"
	EditModeIncremental = "incremental"
)

const stageChangeDescription = "Stage a change to one file. Nothing reaches the repository until commit_changes is called. " +
	"Staging a path again replaces its pending change. Use edit_mode \"incremental\" with edit_operations " +
	"to replace exact snippets of the current content instead of resending the whole file."

// StagingTools wraps a base tools type and adds staging callbacks.
type StagingTools[T any] struct {
	base T
	callbacks.StagingCallbacks
}

// NewStagingTools creates a StagingTools wrapping the given base tools.
func NewStagingTools[T any](base T, cb callbacks.StagingCallbacks) StagingTools[T] {
	return StagingTools[T]{base: base, StagingCallbacks: cb}
}

type stagingToolsProvider[T any] struct {
	baseProvider ToolProvider[T]
}

var _ ToolProvider[StagingTools[EmptyTools]] = stagingToolsProvider[EmptyTools]{}

// NewStagingToolsProvider adds stage_change, commit_changes and
// list_staged_changes on top of the base provider's tools.
func NewStagingToolsProvider[T any](base ToolProvider[T]) ToolProvider[StagingTools[T]] {
	return stagingToolsProvider[T]{baseProvider: base}
}

func (p stagingToolsProvider[T]) Tools(cb StagingTools[T]) map[string]Tool {
	tools := p.baseProvider.Tools(cb.base)

	if cb.StageChange != nil {
		tools["stage_change"] = Tool{
			Def: Definition{
				Name:        "stage_change",
				Description: stageChangeDescription,
				Parameters: []Parameter{
					reasoning("making this change"),
					{Name: "path", Type: "string", Description: "The file path (relative to repository root)", Required: true},
					{Name: "operation", Type: "string", Description: "The kind of change", Required: true, Enum: []string{"create", "update", "delete"}},
					{Name: "content", Type: "string", Description: "The complete new content (full mode, create or update)"},
					{Name: "edit_mode", Type: "string", Description: "How content is supplied (default: full)", Enum: []string{EditModeFull, EditModeIncremental}},
					{
						Name:        "edit_operations",
						Type:        "array",
						Description: "Replacements applied in order (incremental mode). Each old_text must appear literally in the content.",
						Items: &Parameter{
							Type: "object",
							Properties: []Parameter{
								{Name: "old_text", Type: "string", Description: "The exact text to replace", Required: true},
								{Name: "new_text", Type: "string", Description: "The replacement text", Required: true},
							},
						},
					},
					{Name: "match_policy", Type: "string", Description: "How repeated matches of old_text are handled", Enum: []string{"replace_all", "replace_first", "require_unique"}},
					{Name: "description", Type: "string", Description: "A short description of the change"},
				},
			},
			Handler: stageChangeHandler(cb.StageChange),
			Serial:  true,
		}
	}

	if cb.CommitChanges != nil {
		tools["commit_changes"] = Tool{
			Def: Definition{
				Name:        "commit_changes",
				Description: "Publish every staged change as a single commit. Fails without publishing anything if the branch moved since it was read.",
				Parameters: []Parameter{
					reasoning("committing now"),
					{Name: "message", Type: "string", Description: "The commit message", Required: true},
					{Name: "branch", Type: "string", Description: "The branch to commit to (default: the session branch)"},
				},
			},
			Handler: commitChangesHandler(cb.CommitChanges),
			Serial:  true,
		}
	}

	if cb.ListStagedChanges != nil {
		tools["list_staged_changes"] = Tool{
			Def: Definition{
				Name:        "list_staged_changes",
				Description: "List the changes staged so far and not yet committed.",
				Parameters:  []Parameter{reasoning("checking the staged changes")},
			},
			Handler: listStagedHandler(cb.ListStagedChanges),
			Serial:  true,
		}
	}

	return tools
}

func stageChangeHandler(stageFn func(context.Context, callbacks.StageRequest) (callbacks.StagedChange, error)) Handler {
	return func(ctx context.Context, call ToolCall) (any, error) {
		var req callbacks.StageRequest
		var err error
		if req.Path, err = Param[string](call, "path"); err != nil {
			return nil, err
		}
		if req.Operation, err = Param[string](call, "operation"); err != nil {
			return nil, err
		}
		if req.EditMode, err = OptionalParam(call, "edit_mode", EditModeFull); err != nil {
			return nil, err
		}
		if req.MatchPolicy, err = OptionalParam(call, "match_policy", ""); err != nil {
			return nil, err
		}
		if req.Description, err = OptionalParam(call, "description", ""); err != nil {
			return nil, err
		}
		if params.Has(call.Args, "content") {
			content, err := Param[string](call, "content")
			if err != nil {
				return nil, err
			}
			req.Content = &content
		}
		if req.Edits, err = params.Decode[[]callbacks.EditOperation](call.Args, "edit_operations"); err != nil {
			return nil, agenterr.New(agenterr.KindValidation, call.Name, err)
		}

		staged, err := stageFn(ctx, req)
		if err != nil {
			return nil, err
		}
		clog.FromContext(ctx).With("path", staged.Path).With("operation", staged.Operation).Info("Staged change")
		return map[string]any{"staged": true, "change": staged}, nil
	}
}

func commitChangesHandler(commitFn func(context.Context, string, string) (callbacks.CommitResult, error)) Handler {
	return func(ctx context.Context, call ToolCall) (any, error) {
		message, err := Param[string](call, "message")
		if err != nil {
			return nil, err
		}
		branch, err := OptionalParam(call, "branch", "")
		if err != nil {
			return nil, err
		}
		return commitFn(ctx, message, branch)
	}
}

func listStagedHandler(listFn func(context.Context) ([]callbacks.StagedChange, error)) Handler {
	return func(ctx context.Context, _ ToolCall) (any, error) {
		changes, err := listFn(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"changes": changes, "count": len(changes)}, nil
	}
}
