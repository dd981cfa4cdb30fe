/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"

	"chainguard.dev/repoagent/agents/toolcall/callbacks"
	"github.com/chainguard-dev/clog"
)

// RepositoryTools wraps a base tools type and adds repository callbacks.
type RepositoryTools[T any] struct {
	base T
	callbacks.RepositoryCallbacks
}

// NewRepositoryTools creates a RepositoryTools wrapping the given base tools.
func NewRepositoryTools[T any](base T, cb callbacks.RepositoryCallbacks) RepositoryTools[T] {
	return RepositoryTools[T]{base: base, RepositoryCallbacks: cb}
}

type repositoryToolsProvider[T any] struct {
	baseProvider ToolProvider[T]
}

var _ ToolProvider[RepositoryTools[EmptyTools]] = repositoryToolsProvider[EmptyTools]{}

// NewRepositoryToolsProvider adds read_file, list_files, search_code,
// create_branch and create_pull_request on top of the base provider's
// tools. Each tool is only added if its callback is set.
func NewRepositoryToolsProvider[T any](base ToolProvider[T]) ToolProvider[RepositoryTools[T]] {
	return repositoryToolsProvider[T]{baseProvider: base}
}

func (p repositoryToolsProvider[T]) Tools(cb RepositoryTools[T]) map[string]Tool {
	tools := p.baseProvider.Tools(cb.base)

	if cb.ReadFile != nil {
		tools["read_file"] = Tool{
			Def: Definition{
				Name:        "read_file",
				Description: "Read the complete content of a file from the repository. Pending staged changes are not reflected; use list_staged_changes for those.",
				Parameters: []Parameter{
					reasoning("reading this file"),
					{Name: "path", Type: "string", Description: "The path to the file to read (relative to repository root)", Required: true},
					{Name: "branch", Type: "string", Description: "The branch to read from (default: the session branch)"},
				},
			},
			Handler: readFileHandler(cb.ReadFile),
		}
	}

	if cb.ListFiles != nil {
		tools["list_files"] = Tool{
			Def: Definition{
				Name:        "list_files",
				Description: "List the files and directories directly under a directory of the repository.",
				Parameters: []Parameter{
					reasoning("listing this directory"),
					{Name: "path", Type: "string", Description: "The directory to list (relative to repository root, empty for the root)"},
					{Name: "branch", Type: "string", Description: "The branch to list (default: the session branch)"},
				},
			},
			Handler: listFilesHandler(cb.ListFiles),
		}
	}

	if cb.SearchCode != nil {
		tools["search_code"] = Tool{
			Def: Definition{
				Name:        "search_code",
				Description: "Search the repository's default branch for code matching a query.",
				Parameters: []Parameter{
					reasoning("searching for this"),
					{Name: "query", Type: "string", Description: "The text to search for", Required: true},
					{Name: "path", Type: "string", Description: "Restrict the search to this directory"},
					{Name: "extension", Type: "string", Description: "Restrict the search to files with this extension (without the dot)"},
				},
			},
			Handler: searchCodeHandler(cb.SearchCode),
		}
	}

	if cb.CreateBranch != nil {
		tools["create_branch"] = Tool{
			Def: Definition{
				Name:        "create_branch",
				Description: "Create a new branch pointing at the head of an existing branch.",
				Parameters: []Parameter{
					reasoning("creating this branch"),
					{Name: "name", Type: "string", Description: "The name of the new branch", Required: true},
					{Name: "source_branch", Type: "string", Description: "The branch to start from (default: the session branch)"},
				},
			},
			Handler: createBranchHandler(cb.CreateBranch),
		}
	}

	if cb.CreatePullRequest != nil {
		tools["create_pull_request"] = Tool{
			Def: Definition{
				Name:        "create_pull_request",
				Description: "Open a pull request from one branch into another.",
				Parameters: []Parameter{
					reasoning("opening this pull request"),
					{Name: "title", Type: "string", Description: "The pull request title", Required: true},
					{Name: "head", Type: "string", Description: "The branch containing the changes", Required: true},
					{Name: "base", Type: "string", Description: "The branch to merge into", Required: true},
					{Name: "body", Type: "string", Description: "The pull request description"},
				},
			},
			Handler: createPullRequestHandler(cb.CreatePullRequest),
		}
	}

	return tools
}

func readFileHandler(readFn func(context.Context, string, string) (string, error)) Handler {
	return func(ctx context.Context, call ToolCall) (any, error) {
		path, err := Param[string](call, "path")
		if err != nil {
			return nil, err
		}
		branch, err := OptionalParam(call, "branch", "")
		if err != nil {
			return nil, err
		}

		clog.FromContext(ctx).With("path", path).Info("Reading file")
		content, err := readFn(ctx, path, branch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": path, "content": content, "size": len(content)}, nil
	}
}

func listFilesHandler(listFn func(context.Context, string, string) ([]callbacks.FileEntry, error)) Handler {
	return func(ctx context.Context, call ToolCall) (any, error) {
		dir, err := OptionalParam(call, "path", "")
		if err != nil {
			return nil, err
		}
		branch, err := OptionalParam(call, "branch", "")
		if err != nil {
			return nil, err
		}

		entries, err := listFn(ctx, dir, branch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": dir, "entries": entries, "count": len(entries)}, nil
	}
}

func searchCodeHandler(searchFn func(context.Context, string, string, string) ([]callbacks.CodeMatch, error)) Handler {
	return func(ctx context.Context, call ToolCall) (any, error) {
		query, err := Param[string](call, "query")
		if err != nil {
			return nil, err
		}
		dir, err := OptionalParam(call, "path", "")
		if err != nil {
			return nil, err
		}
		ext, err := OptionalParam(call, "extension", "")
		if err != nil {
			return nil, err
		}

		matches, err := searchFn(ctx, query, dir, ext)
		if err != nil {
			return nil, err
		}
		return map[string]any{"query": query, "matches": matches, "count": len(matches)}, nil
	}
}

func createBranchHandler(createFn func(context.Context, string, string) (string, error)) Handler {
	return func(ctx context.Context, call ToolCall) (any, error) {
		name, err := Param[string](call, "name")
		if err != nil {
			return nil, err
		}
		source, err := OptionalParam(call, "source_branch", "")
		if err != nil {
			return nil, err
		}

		sha, err := createFn(ctx, name, source)
		if err != nil {
			return nil, err
		}
		clog.FromContext(ctx).With("branch", name).With("sha", sha).Info("Created branch")
		return map[string]any{"branch": name, "sha": sha}, nil
	}
}

func createPullRequestHandler(createFn func(context.Context, string, string, string, string) (callbacks.PullRequest, error)) Handler {
	return func(ctx context.Context, call ToolCall) (any, error) {
		title, err := Param[string](call, "title")
		if err != nil {
			return nil, err
		}
		head, err := Param[string](call, "head")
		if err != nil {
			return nil, err
		}
		base, err := Param[string](call, "base")
		if err != nil {
			return nil, err
		}
		body, err := OptionalParam(call, "body", "")
		if err != nil {
			return nil, err
		}

		pr, err := createFn(ctx, title, head, base, body)
		if err != nil {
			return nil, err
		}
		return pr, nil
	}
}
