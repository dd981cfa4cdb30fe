/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package gitstore defines the narrow capability interfaces the agent uses
to talk to a repository host.

Callers depend on ObjectStore, ContentReader and friends rather than on a
wire client. Two implementations ship with the module:

  - ghstore talks to GitHub with go-github.
  - memstore keeps a content-addressed object graph in memory.

Errors returned by implementations are classified with agenterr:
a missing branch is KindRefNotFound, a missing file is KindPathNotFound
and a branch that moved underneath UpdateRef is KindCommitConflict.
*/
package gitstore
