/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudetool

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/toolcall"
	"github.com/anthropics/anthropic-sdk-go"
)

// FromDefinition converts a provider-independent definition to a Claude tool.
func FromDefinition(def toolcall.Definition) anthropic.ToolParam {
	properties, required := schema(def.Parameters)
	return anthropic.ToolParam{
		Name:        def.Name,
		Description: anthropic.String(def.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}

// Tools converts a tool set to Claude tool definitions, ordered by name so
// requests are stable across calls.
func Tools(tools map[string]toolcall.Tool) []anthropic.ToolUnionParam {
	defs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, name := range slices.Sorted(maps.Keys(tools)) {
		def := FromDefinition(tools[name].Def)
		defs = append(defs, anthropic.ToolUnionParam{OfTool: &def})
	}
	return defs
}

// Call converts a tool use block into a ToolCall. Malformed input is a
// validation error the model can correct.
func Call(id, name string, input json.RawMessage) (toolcall.ToolCall, error) {
	call := toolcall.ToolCall{ID: id, Name: name, Args: map[string]any{}}
	if len(input) == 0 {
		return call, nil
	}
	if err := json.Unmarshal(input, &call.Args); err != nil {
		return call, agenterr.New(agenterr.KindValidation, name, fmt.Errorf("failed to parse tool input: %w", err))
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return call, nil
}

// Result builds the tool result block sent back to Claude.
func Result(toolUseID, content string, isError bool) anthropic.ContentBlockParamUnion {
	block := &anthropic.ToolResultBlockParam{
		ToolUseID: toolUseID,
		Content: []anthropic.ToolResultBlockParamContentUnion{{
			OfText: &anthropic.TextBlockParam{Text: content},
		}},
	}
	if isError {
		block.IsError = anthropic.Bool(true)
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: block}
}

func schema(params []toolcall.Parameter) (map[string]any, []string) {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		properties[p.Name] = property(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return properties, required
}

func property(p toolcall.Parameter) map[string]any {
	prop := map[string]any{"type": p.Type}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		prop["enum"] = p.Enum
	}
	if p.Items != nil {
		prop["items"] = property(*p.Items)
	}
	if len(p.Properties) > 0 {
		props, required := schema(p.Properties)
		prop["properties"] = props
		if len(required) > 0 {
			prop["required"] = required
		}
	}
	return prop
}
