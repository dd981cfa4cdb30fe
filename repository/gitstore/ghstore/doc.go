/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ghstore implements the gitstore capabilities with go-github.
//
// Host errors are classified into agenterr kinds: a 404 on a ref is
// ref_not_found, a rejected ref update is commit_conflict, and rate limits
// are rate_limited.
package ghstore
