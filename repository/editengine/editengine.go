/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package editengine applies ordered literal search/replace edits to file content.
package editengine

import (
	"strings"

	"chainguard.dev/repoagent/agents/agenterr"
)

// Policy selects how many occurrences of an anchor an edit replaces.
type Policy string

const (
	// ReplaceAll replaces every occurrence of the anchor.
	ReplaceAll Policy = "replace_all"
	// ReplaceFirst replaces only the first occurrence.
	ReplaceFirst Policy = "replace_first"
	// RequireUnique fails unless the anchor occurs exactly once.
	RequireUnique Policy = "require_unique"
)

// DefaultPolicy matches the historical behavior of the agent.
const DefaultPolicy = ReplaceAll

// Conflict reasons reported in the error.
const (
	ReasonNotFound  = "not found"
	ReasonAmbiguous = "ambiguous"
	ReasonEmpty     = "empty anchor"
)

// ParsePolicy converts a configuration or tool value into a Policy.
// The empty string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultPolicy, nil
	case ReplaceAll, ReplaceFirst, RequireUnique:
		return p, nil
	default:
		return "", agenterr.Validation("unknown match policy %q", s)
	}
}

// Operation replaces OldText with NewText. OldText is a literal, not a pattern.
type Operation struct {
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// Apply runs ops against content in order, each one seeing the output of
// the previous. The first operation whose anchor cannot be applied under
// policy fails the whole call with an edit conflict carrying its index,
// and no partial result is returned.
func Apply(content string, ops []Operation, policy Policy) (string, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	for i, op := range ops {
		if op.OldText == "" {
			return "", agenterr.EditConflict(i, ReasonEmpty)
		}
		n := strings.Count(content, op.OldText)
		if n == 0 {
			return "", agenterr.EditConflict(i, ReasonNotFound)
		}
		switch policy {
		case ReplaceAll:
			content = strings.ReplaceAll(content, op.OldText, op.NewText)
		case ReplaceFirst:
			content = strings.Replace(content, op.OldText, op.NewText, 1)
		case RequireUnique:
			if n > 1 {
				return "", agenterr.EditConflict(i, ReasonAmbiguous)
			}
			content = strings.Replace(content, op.OldText, op.NewText, 1)
		default:
			return "", agenterr.Validation("unknown match policy %q", policy)
		}
	}
	return content, nil
}
