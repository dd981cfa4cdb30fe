/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package staging holds the pending file operations of one agent session.
//
// A Set never talks to the remote repository. The commit builder reads a
// Snapshot and, once the branch has moved to the new commit, calls
// Discard so that anything staged while the commit was in flight survives.
package staging
