/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

// ToolProvider defines tools for an agent.
// Compose providers by wrapping: Empty -> Repository -> Staging -> Search.
// Conversion to SDK-specific types happens in claudetool and googletool.
type ToolProvider[CB any] interface {
	// Tools returns unified tool definitions that work with any provider.
	Tools(cb CB) map[string]Tool
}

// EmptyTools is the base tools type with no callbacks.
type EmptyTools struct{}

type emptyToolsProvider struct{}

var _ ToolProvider[EmptyTools] = emptyToolsProvider{}

// NewEmptyToolsProvider returns a ToolProvider that provides no tools.
func NewEmptyToolsProvider() ToolProvider[EmptyTools] {
	return emptyToolsProvider{}
}

func (emptyToolsProvider) Tools(EmptyTools) map[string]Tool {
	return map[string]Tool{}
}
