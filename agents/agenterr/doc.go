/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenterr defines the error taxonomy shared by the repository agent.

Every failure that crosses a package boundary is classified with a Kind.
The orchestrator uses the Kind to decide whether a failure aborts the
session (credential and configuration failures) or is returned to the
model as a failed tool result (everything else).

	if err := builder.Commit(ctx, snap, ref, msg, author); err != nil {
		if errors.Is(err, agenterr.ErrCommitConflict) {
			// re-read the branch and rebuild
		}
	}

Edit conflicts carry the index of the operation that failed to match:

	var e *agenterr.Error
	if errors.As(err, &e) && e.Kind == agenterr.KindEditConflict {
		fmt.Println("edit", e.Index, "did not match")
	}
*/
package agenterr
