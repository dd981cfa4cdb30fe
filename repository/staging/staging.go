/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package staging

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"chainguard.dev/repoagent/agents/agenterr"
)

// Operation is the kind of pending change for a path.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ParseOperation converts a tool argument into an Operation.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return op, nil
	default:
		return "", agenterr.Validation("unknown operation %q (want create, update or delete)", s)
	}
}

// Change is one pending file operation. Content is nil for deletes.
type Change struct {
	Path        string    `json:"path"`
	Operation   Operation `json:"operation"`
	Content     *string   `json:"content,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Create returns a change that creates path with content.
func Create(path, content, description string) Change {
	return Change{Path: path, Operation: OperationCreate, Content: &content, Description: description}
}

// Update returns a change that replaces the content of path.
func Update(path, content, description string) Change {
	return Change{Path: path, Operation: OperationUpdate, Content: &content, Description: description}
}

// Delete returns a change that removes path.
func Delete(path, description string) Change {
	return Change{Path: path, Operation: OperationDelete, Description: description}
}

// Validate checks the content requirement for the operation.
func (c Change) Validate() error {
	switch c.Operation {
	case OperationCreate, OperationUpdate:
		if c.Content == nil {
			return agenterr.Validation("%s of %s requires content", c.Operation, c.Path)
		}
	case OperationDelete:
		if c.Content != nil {
			return agenterr.Validation("delete of %s must not carry content", c.Path)
		}
	default:
		return agenterr.Validation("unknown operation %q", c.Operation)
	}
	return nil
}

// NormalizePath strips leading slashes and cleans p. Paths that are empty
// or escape the repository root are rejected.
func NormalizePath(p string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(p), "/")
	if trimmed == "" {
		return "", agenterr.Validation("path is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", agenterr.Validation("path %q escapes the repository root", p)
	}
	return cleaned, nil
}

type entry struct {
	change   Change
	revision uint64
}

// Set is the staging set for one session. It is safe for concurrent use.
// A path has at most one pending change; staging it again replaces the
// earlier entry.
type Set struct {
	mu       sync.Mutex
	entries  map[string]entry
	revision uint64
}

// New returns an empty staging set.
func New() *Set {
	return &Set{entries: make(map[string]entry)}
}

// Stage records c, replacing any pending change for the same path.
func (s *Set) Stage(c Change) (Change, error) {
	p, err := NormalizePath(c.Path)
	if err != nil {
		return Change{}, err
	}
	c.Path = p
	if err := c.Validate(); err != nil {
		return Change{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
	s.entries[p] = entry{change: c, revision: s.revision}
	return c, nil
}

// Delete stages the removal of path.
func (s *Set) Delete(path, description string) (Change, error) {
	return s.Stage(Delete(path, description))
}

// Get returns the pending change for path, if any.
func (s *Set) Get(path string) (Change, bool) {
	p, err := NormalizePath(path)
	if err != nil {
		return Change{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[p]
	return e.change, ok
}

// Len returns the number of pending changes.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a read-only copy of the pending changes sorted by path.
func (s *Set) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Changes:   make([]Change, 0, len(s.entries)),
		revisions: make(map[string]uint64, len(s.entries)),
	}
	for p, e := range s.entries {
		snap.Changes = append(snap.Changes, e.change)
		snap.revisions[p] = e.revision
	}
	slices.SortFunc(snap.Changes, func(a, b Change) int { return strings.Compare(a.Path, b.Path) })
	return snap
}

// Clear drops every pending change.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

// Discard removes the entries captured by snap that have not been
// re-staged since the snapshot was taken.
func (s *Set) Discard(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, rev := range snap.revisions {
		if e, ok := s.entries[p]; ok && e.revision == rev {
			delete(s.entries, p)
		}
	}
}

// Snapshot is a point-in-time view of a Set.
type Snapshot struct {
	Changes   []Change
	revisions map[string]uint64
}

// Empty reports whether the snapshot holds no changes.
func (s Snapshot) Empty() bool { return len(s.Changes) == 0 }

// Summary renders a one-line description of each change.
func (s Snapshot) Summary() []string {
	out := make([]string, 0, len(s.Changes))
	for _, c := range s.Changes {
		line := fmt.Sprintf("%s %s", c.Operation, c.Path)
		if c.Description != "" {
			line += ": " + c.Description
		}
		out = append(out, line)
	}
	return out
}
