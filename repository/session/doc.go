/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package session binds one agent session to a repository branch and
// exposes it as tool callbacks.
//
// Incremental edits apply to the pending content of a path when one is
// staged, otherwise to the branch's current content. A path staged for
// deletion cannot be edited.
package session
