/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package callbacks

import "context"

// SearchCallbacks reach beyond the repository.
type SearchCallbacks struct {
	// WebSearch returns cleaned, length-bounded result text for query.
	WebSearch func(ctx context.Context, query string) (string, error)
}
