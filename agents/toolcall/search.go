/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"

	"chainguard.dev/repoagent/agents/toolcall/callbacks"
)

// SearchTools wraps a base tools type and adds web search.
type SearchTools[T any] struct {
	base T
	callbacks.SearchCallbacks
}

// NewSearchTools creates a SearchTools wrapping the given base tools.
func NewSearchTools[T any](base T, cb callbacks.SearchCallbacks) SearchTools[T] {
	return SearchTools[T]{base: base, SearchCallbacks: cb}
}

type searchToolsProvider[T any] struct {
	baseProvider ToolProvider[T]
}

var _ ToolProvider[SearchTools[EmptyTools]] = searchToolsProvider[EmptyTools]{}

// NewSearchToolsProvider adds web_search on top of the base provider's tools.
func NewSearchToolsProvider[T any](base ToolProvider[T]) ToolProvider[SearchTools[T]] {
	return searchToolsProvider[T]{baseProvider: base}
}

func (p searchToolsProvider[T]) Tools(cb SearchTools[T]) map[string]Tool {
	tools := p.baseProvider.Tools(cb.base)
	if cb.WebSearch == nil {
		return tools
	}
	tools["web_search"] = Tool{
		Def: Definition{
			Name:        "web_search",
			Description: "Search the web for documentation or current information. Returns a short digest of the top results.",
			Parameters: []Parameter{
				reasoning("searching the web"),
				{Name: "query", Type: "string", Description: "The search query", Required: true},
			},
		},
		Handler: func(ctx context.Context, call ToolCall) (any, error) {
			query, err := Param[string](call, "query")
			if err != nil {
				return nil, err
			}
			text, err := cb.WebSearch(ctx, query)
			if err != nil {
				return nil, err
			}
			return map[string]any{"query": query, "results": text}, nil
		},
	}
	return tools
}
