/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"encoding/json"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// stringLiteral only accepts untyped string constants, so templates and
// literal bindings cannot come from request data.
type stringLiteral string

// Prompt is an immutable template with named placeholders.
// Every Bind method returns a new Prompt.
type Prompt struct {
	template string
	values   map[string]func() (string, error)
}

// NewPrompt parses template and records its placeholders.
func NewPrompt(template stringLiteral) (*Prompt, error) {
	names, err := placeholders(string(template))
	if err != nil {
		return nil, err
	}
	p := &Prompt{template: string(template), values: make(map[string]func() (string, error), len(names))}
	for _, name := range names {
		p.values[name] = nil
	}
	return p, nil
}

// Must panics if err is non-nil. It is intended for package-level templates.
func Must(p *Prompt, err error) *Prompt {
	if err != nil {
		panic(err)
	}
	return p
}

// Placeholders returns the placeholder names in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	names := make(map[string]struct{}, len(p.values))
	for name := range p.values {
		names[name] = struct{}{}
	}
	return names
}

// BindLiteral binds a developer-supplied string.
func (p *Prompt) BindLiteral(name string, value stringLiteral) (*Prompt, error) {
	return p.bind(name, func() (string, error) { return string(value), nil })
}

// BindJSON binds data marshaled as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON for %q: %w", name, err)
		}
		return string(b), nil
	})
}

// BindYAML binds data marshaled as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("failed to marshal YAML for %q: %w", name, err)
		}
		return string(b), nil
	})
}

func (p *Prompt) bind(name string, value func() (string, error)) (*Prompt, error) {
	current, exists := p.values[name]
	if !exists {
		return nil, fmt.Errorf("binding %q not found in template", name)
	}
	if current != nil {
		return nil, fmt.Errorf("binding %q already bound", name)
	}
	values := maps.Clone(p.values)
	values[name] = value
	return &Prompt{template: p.template, values: values}, nil
}

// Build substitutes every placeholder in a single pass, so bound values
// are never themselves expanded.
func (p *Prompt) Build() (string, error) {
	resolved := make(map[string]string, len(p.values))
	for name, value := range p.values {
		if value == nil {
			return "", fmt.Errorf("unbound placeholder: %s", name)
		}
		v, err := value()
		if err != nil {
			return "", err
		}
		resolved[name] = v
	}
	return expand(p.template, resolved)
}
