/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package commitbuilder turns a staging snapshot into one commit.

The sequence is: resolve the branch to its parent commit, read the
parent's tree, create a blob for every create or update, build one tree
on top of the parent's tree, create one commit, and finally move the
branch with a fast-forward guard.

	b, err := commitbuilder.New(store, commitbuilder.WithAuthor(author))
	if err != nil {
		return err
	}
	res, err := b.Commit(ctx, set, commitbuilder.Request{
		Repo:    repo,
		Branch:  "main",
		Message: "docs: add readme",
	})

Only the final ref update is visible to readers. A failure in any earlier
step leaves the branch untouched; blobs created before the failure are
unreferenced. Deleted paths are sent as removal entries because a path
omitted from a tree layered on a base tree is kept.

If the branch moved after it was resolved, Commit returns an error
matching agenterr.ErrCommitConflict. WithConflictRetry opts into
rebuilding on the new parent.
*/
package commitbuilder
