/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googletool

import (
	"maps"
	"slices"

	"chainguard.dev/repoagent/agents/toolcall"
	"google.golang.org/genai"
)

// FromDefinition converts a provider-independent definition to a Gemini
// function declaration.
func FromDefinition(def toolcall.Definition) *genai.FunctionDeclaration {
	properties, required := schema(def.Parameters)
	return &genai.FunctionDeclaration{
		Name:        def.Name,
		Description: def.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: properties,
			Required:   required,
		},
	}
}

// Tools converts a tool set to a single Gemini tool holding every
// declaration, ordered by name.
func Tools(tools map[string]toolcall.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, name := range slices.Sorted(maps.Keys(tools)) {
		decls = append(decls, FromDefinition(tools[name].Def))
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Call converts a Gemini function call into a ToolCall. Gemini does not
// always assign ids, so fallbackID is used when the call has none.
func Call(fc *genai.FunctionCall, fallbackID string) toolcall.ToolCall {
	id := fc.ID
	if id == "" {
		id = fallbackID
	}
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return toolcall.ToolCall{ID: id, Name: fc.Name, Args: args}
}

// Response builds the function response part sent back to Gemini.
func Response(call toolcall.ToolCall, response map[string]any) *genai.Part {
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: response,
	}}
}

func schema(params []toolcall.Parameter) (map[string]*genai.Schema, []string) {
	properties := make(map[string]*genai.Schema, len(params))
	var required []string
	for _, p := range params {
		properties[p.Name] = property(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return properties, required
}

func property(p toolcall.Parameter) *genai.Schema {
	s := &genai.Schema{
		Type:        genai.Type(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
	}
	if p.Items != nil {
		s.Items = property(*p.Items)
	}
	if len(p.Properties) > 0 {
		s.Properties, s.Required = schema(p.Properties)
	}
	return s
}
