/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package websearch queries a Tavily-compatible search API and condenses
// the results into a short digest suitable for a tool result.
//
// Requests rotate round-robin across the configured API keys so load is
// spread over their quotas.
package websearch
