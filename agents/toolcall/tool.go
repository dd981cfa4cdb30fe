/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"

	"chainguard.dev/repoagent/agents/agenterr"
	"chainguard.dev/repoagent/agents/toolcall/params"
)

// ToolCall is a provider-independent representation of a tool call.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// Definition describes a tool's schema (name, description, parameters).
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Parameter describes a single tool parameter.
type Parameter struct {
	Name        string
	Type        string // "string", "integer", "boolean", "number", "array", "object"
	Description string
	Required    bool
	Enum        []string
	// Items describes array elements.
	Items *Parameter
	// Properties describes object fields.
	Properties []Parameter
}

// Handler executes a tool call. The result is serialized back to the model;
// a returned error becomes a failed tool result carrying its agenterr kind.
type Handler func(ctx context.Context, call ToolCall) (any, error)

// Tool defines a tool once with a single handler that works with any provider.
type Tool struct {
	Def     Definition
	Handler Handler
	// Serial tools change session state. They never run alongside other
	// calls, so concurrent dispatch gives the same result as call order.
	Serial bool
}

// Param extracts a required parameter, reporting a validation error if it
// is missing or mistyped.
func Param[T any](call ToolCall, name string) (T, error) {
	v, err := params.Extract[T](call.Args, name)
	if err != nil {
		return v, agenterr.New(agenterr.KindValidation, call.Name, err)
	}
	return v, nil
}

// OptionalParam extracts an optional parameter with a default value.
func OptionalParam[T any](call ToolCall, name string, defaultValue T) (T, error) {
	v, err := params.ExtractOptional(call.Args, name, defaultValue)
	if err != nil {
		return v, agenterr.New(agenterr.KindValidation, call.Name, err)
	}
	return v, nil
}

// reasoning is the leading parameter of every tool.
func reasoning(action string) Parameter {
	return Parameter{Name: "reasoning", Type: "string", Description: "Explain why you are " + action + ".", Required: true}
}
